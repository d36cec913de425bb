package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in an in-memory session history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Citations []string  `json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AskSettings carries UI settings through to the answerer unmodified.
type AskSettings struct {
	TopK    int      `json:"top_k"`
	Sources []string `json:"sources,omitempty"`
}

// Reply is what a session returns for one question.
type Reply struct {
	SessionID string   `json:"session_id"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Abstained bool     `json:"abstained"`
	Hint      string   `json:"hint,omitempty"`

	Outcome        RetrievalOutcome `json:"outcome"`
	RetrievalQuery string           `json:"-"`
}
