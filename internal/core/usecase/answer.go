package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter domain.SourceFilter) (domain.Retrieval, error)
}

type AnswerUseCase struct {
	retriever  retriever
	completer  ports.Completer
	classifier FollowUpClassifier
}

func NewAnswerUseCase(
	retriever retriever,
	completer ports.Completer,
	classifier FollowUpClassifier,
) *AnswerUseCase {
	return &AnswerUseCase{
		retriever:  retriever,
		completer:  completer,
		classifier: classifier,
	}
}

func (uc *AnswerUseCase) Answer(
	ctx context.Context,
	question string,
	k int,
	filter domain.SourceFilter,
	history string,
) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return &domain.Answer{
			Text:      domain.EmptyQuestionMessage,
			Citations: []string{},
			Outcome:   domain.OutcomeEmptyInput,
		}, nil
	}

	query := uc.classifier.RewriteQuery(question, history)

	retrieval, err := uc.retriever.Retrieve(ctx, query, k, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if !retrieval.Grounded() {
		return abstain(retrieval.Outcome, query), nil
	}

	raw, err := uc.completer.Complete(ctx, buildGroundedPrompt(question, history, retrieval.Context))
	if err != nil {
		return nil, fmt.Errorf("complete answer: %w", err)
	}

	// A model-emitted abstention never carries the retrieved citations.
	text := strings.TrimSpace(raw)
	if text == "" || normalizeCompletion(text) == domain.AbstentionMessage {
		return abstain(domain.OutcomeGrounded, query), nil
	}

	return &domain.Answer{
		Text:           text,
		Citations:      retrieval.Citations,
		Outcome:        domain.OutcomeGrounded,
		RetrievalQuery: query,
	}, nil
}

func abstain(outcome domain.RetrievalOutcome, query string) *domain.Answer {
	return &domain.Answer{
		Text:           domain.AbstentionMessage,
		Citations:      []string{},
		Abstained:      true,
		Outcome:        outcome,
		RetrievalQuery: query,
	}
}
