package domain

import "context"

// Page is one page of extracted document text.
// Number is the zero-based page index as reported by the extractor.
type Page struct {
	Source string
	Number int
	Text   string
}

// PageRef identifies the originating page of a chunk. Extractors report
// zero-based integer indices; some formats carry printed labels ("iv")
// instead. A chunk may have neither.
type PageRef struct {
	Number    int
	HasNumber bool
	Label     string
}

// Chunk is a bounded span of document text, the unit of retrieval.
// Immutable once produced by the chunker.
type Chunk struct {
	Content string
	Source  string
	Page    PageRef
}

// SearchResult is a retrieved chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Message is a single chat message sent to the language model.
// Role is one of "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one completed question/answer exchange as stored in the
// persistent memory file.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Chunker splits extracted pages into chunks suitable for indexing.
type Chunker interface {
	Chunk(pages []Page) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists vectors partitioned by namespace and supports
// similarity search within one namespace.
type VectorStore interface {
	// IsPopulated reports whether the namespace already holds vectors,
	// for example from a prior process instance.
	IsPopulated(ctx context.Context, namespace string) (bool, error)

	// Index embeds the chunks into the namespace. Indexing the same
	// chunks twice must not corrupt search results.
	Index(ctx context.Context, namespace string, chunks []Chunk, vectors [][]float64) error

	// Search returns at most topK chunks ordered by decreasing relevance.
	Search(ctx context.Context, namespace string, vector []float64, topK int) ([]SearchResult, error)
}

// ChatModel produces a text completion for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
