package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type SessionConfig struct {
	HistoryMessages int
	IdleTTL         time.Duration
}

type session struct {
	mu       sync.Mutex
	turns    []domain.Turn
	lastSeen time.Time
}

// SessionService keeps conversation history in memory only. Each session is
// owned by one caller at a time; concurrent asks on the same session are
// serialized.
type SessionService struct {
	answerer ports.QuestionAnswerer
	cfg      SessionConfig
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionService(answerer ports.QuestionAnswerer, cfg SessionConfig) *SessionService {
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = 6
	}
	return &SessionService{
		answerer: answerer,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (s *SessionService) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictIdleLocked()
	s.sessions[id] = &session{lastSeen: s.now()}
	return id
}

func (s *SessionService) Ask(ctx context.Context, sessionID, question string, settings domain.AskSettings) (*domain.Reply, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	filter := domain.NewSourceFilter(settings.Sources...)
	history := FormatHistory(sess.turns, s.cfg.HistoryMessages)

	answer, err := s.answerer.Answer(ctx, question, settings.TopK, filter, history)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}

	reply := &domain.Reply{
		SessionID: sessionID,
		Question:  question,
		Answer:    answer.Text,
		Citations: answer.Citations,
		Abstained: answer.Abstained,

		Outcome:        answer.Outcome,
		RetrievalQuery: answer.RetrievalQuery,
	}
	if answer.Abstained && filter.Active() {
		reply.Hint = domain.FilteredOutHint
	}

	if answer.Outcome != domain.OutcomeEmptyInput {
		now := s.now().UTC()
		sess.turns = append(sess.turns,
			domain.Turn{Role: domain.RoleUser, Content: question, CreatedAt: now},
			domain.Turn{Role: domain.RoleAssistant, Content: answer.Text, Citations: answer.Citations, CreatedAt: now},
		)
	}
	return reply, nil
}

func (s *SessionService) History(sessionID string) ([]domain.Turn, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]domain.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (s *SessionService) Clear(sessionID string) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.turns = nil
	sess.mu.Unlock()
	return nil
}

func (s *SessionService) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", fmt.Errorf("id=%s", sessionID))
	}
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictIdleLocked()
	return len(s.sessions)
}

func (s *SessionService) lookup(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictIdleLocked()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", fmt.Errorf("id=%s", sessionID))
	}
	sess.lastSeen = s.now()
	return sess, nil
}

func (s *SessionService) evictIdleLocked() {
	if s.cfg.IdleTTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.IdleTTL)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// FormatHistory renders the last limit turns as "User: ..." and
// "Assistant: ..." lines, or NoHistory when there are none.
func FormatHistory(turns []domain.Turn, limit int) string {
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	if len(turns) == 0 {
		return NoHistory
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		speaker := "User"
		if turn.Role == domain.RoleAssistant {
			speaker = "Assistant"
		}
		lines = append(lines, speaker+": "+strings.ReplaceAll(strings.TrimSpace(turn.Content), "\n", " "))
	}
	return strings.Join(lines, "\n")
}
