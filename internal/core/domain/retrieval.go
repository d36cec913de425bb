package domain

import "strings"

// RetrievalOutcome labels why a retrieval produced (or did not produce) context.
// It is diagnostic only: every non-grounded retrieval carries the same empty triple.
type RetrievalOutcome string

const (
	OutcomeGrounded    RetrievalOutcome = "grounded"
	OutcomeEmptyIndex  RetrievalOutcome = "empty_index"
	OutcomeFilteredOut RetrievalOutcome = "filtered_out"
	OutcomeOffTopic    RetrievalOutcome = "off_topic"
	OutcomeNoSelection RetrievalOutcome = "no_selection"
	OutcomeEmptyInput  RetrievalOutcome = "empty_question"
)

// SourceFilter restricts retrieval to a set of source basenames.
// A nil or empty filter is inactive.
type SourceFilter map[string]struct{}

func NewSourceFilter(names ...string) SourceFilter {
	out := make(SourceFilter, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func (f SourceFilter) Active() bool {
	return len(f) > 0
}

func (f SourceFilter) Allows(source string) bool {
	if !f.Active() {
		return true
	}
	_, ok := f[source]
	return ok
}

// Retrieval is the result of one retrieve call. Grounded reports whether any
// context may be used to answer; it is the single emptiness check callers use.
type Retrieval struct {
	Chunks    []Chunk          `json:"chunks"`
	Citations []string         `json:"citations"`
	Context   string           `json:"context"`
	Outcome   RetrievalOutcome `json:"outcome"`
}

func (r Retrieval) Grounded() bool {
	return len(r.Chunks) > 0 && r.Context != ""
}

// NotGrounded builds the uniform empty retrieval.
func NotGrounded(outcome RetrievalOutcome) Retrieval {
	return Retrieval{Outcome: outcome}
}

const (
	AbstentionMessage    = "I cannot find this in the provided documents."
	EmptyQuestionMessage = "Please type a question."
	FilteredOutHint      = "No relevant text found in the selected PDF(s). Try removing the filter or selecting more PDFs."
)

// Answer is the session-facing result of a question. Citations is empty
// whenever Text is the abstention message.
type Answer struct {
	Text           string           `json:"answer"`
	Citations      []string         `json:"citations"`
	Abstained      bool             `json:"abstained"`
	Outcome        RetrievalOutcome `json:"outcome"`
	RetrievalQuery string           `json:"retrieval_query,omitempty"`
}
