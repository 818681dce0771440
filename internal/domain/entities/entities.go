// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Document represents a source document added to the collection.
type Document struct {
	ID        string
	Source    string // Display label used for citations
	Path      string // Set when the document came from the watched folder
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Source     string
	Content    string
	Index      int       // Position in document
	Embedding  []float32 // Vector representation (populated by adapter)
}

// ContextChunk is a retrieved unit of text with its relevance score.
// Produced per request by the vector search; never persisted by the core.
type ContextChunk struct {
	ChunkID    string
	DocumentID string
	Source     string
	Text       string
	Score      float64
}

// Source is a citation attached to an answer.
type Source struct {
	DocumentID string
	Label      string
	Score      float64
}

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one side of an exchange. Immutable once appended to a session.
type Turn struct {
	Role      Role
	Text      string
	Sources   []Source
	CreatedAt time.Time
}

// Session is one user's ongoing conversation.
type Session struct {
	ID          string
	Turns       []Turn
	LastTouched time.Time
}

// AnswerRecord is the result of one synthesis cycle.
// Sources is non-empty only when both UsedRetrieval and Sufficient hold.
type AnswerRecord struct {
	SessionID     string
	Answer        string
	Sources       []Source
	UsedRetrieval bool
	Sufficient    bool
}
