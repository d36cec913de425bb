package usecase

import (
	"strings"
	"unicode"
)

// NoHistory is the placeholder the session layer sends when there are no
// prior turns.
const NoHistory = "(none)"

var DefaultFollowUpMarkers = []string{"it", "that", "this", "those", "them", "summarize", "examples", "what about", "and"}

// FollowUpClassifier guesses whether a question leans on the previous turn.
// It is a heuristic: short questions or questions containing an anaphora or
// continuation marker count as follow-ups.
type FollowUpClassifier struct {
	MaxTokens int
	Markers   []string
}

func NewFollowUpClassifier(maxTokens int, markers []string) FollowUpClassifier {
	if maxTokens < 0 {
		maxTokens = 0
	}
	if markers == nil {
		markers = DefaultFollowUpMarkers
	}
	normalized := make([]string, 0, len(markers))
	for _, marker := range markers {
		marker = strings.Join(tokenize(marker), " ")
		if marker != "" {
			normalized = append(normalized, marker)
		}
	}
	return FollowUpClassifier{MaxTokens: maxTokens, Markers: normalized}
}

func (c FollowUpClassifier) IsFollowUp(question string) bool {
	if len(strings.Fields(question)) <= c.MaxTokens {
		return true
	}

	tokens := tokenize(question)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	phrase := " " + strings.Join(tokens, " ") + " "

	for _, marker := range c.Markers {
		if strings.Contains(marker, " ") {
			if strings.Contains(phrase, " "+marker+" ") {
				return true
			}
			continue
		}
		if _, ok := set[marker]; ok {
			return true
		}
	}
	return false
}

// RewriteQuery prepends the most recent user line from history to a
// follow-up question. Anything else is returned unchanged.
func (c FollowUpClassifier) RewriteQuery(question, history string) string {
	if !c.IsFollowUp(question) {
		return question
	}
	previous, ok := lastUserLine(history)
	if !ok {
		return question
	}
	return previous + "\n" + question
}

func lastUserLine(history string) (string, bool) {
	trimmed := strings.TrimSpace(history)
	if trimmed == "" || trimmed == NoHistory {
		return "", false
	}
	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "User:") {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, "User:"))
		if text != "" {
			return text, true
		}
	}
	return "", false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
