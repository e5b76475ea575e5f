package chat

import "time"

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// LexicalScore is the sentinel similarity assigned to chunks found by the
// lexical fallback, where no true vector score exists.
const LexicalScore = 0.5

// DocumentChunk is one retrievable passage of the knowledge base. Chunks are
// created by the snapshot loader and are read-only during a chat request.
type DocumentChunk struct {
	ID         string
	DocumentID string
	Title      string
	URL        string
	Content    string
	Metadata   map[string]string
	Embedding  []float32
}

// RetrievedChunk annotates a chunk with its similarity to the current query.
type RetrievedChunk struct {
	DocumentChunk
	Similarity float64
}

// Turn is one prior message of the conversation, supplied by the caller on
// every request. Consecutive same-sender turns are legal (system fallback
// messages produce them).
type Turn struct {
	ID        string
	Sender    string
	Message   string
	Timestamp time.Time
}

// RelatedPage is a site page linked to a source document, resolved through
// the optional page graph.
type RelatedPage struct {
	Title string
	URL   string
}

// Source is the provenance of one document that grounded the answer.
type Source struct {
	Title      string
	URL        string
	Snippet    string
	Similarity float64
	Related    []RelatedPage
}

type Response struct {
	Answer    string
	Sources   []Source
	TurnIndex int
}
