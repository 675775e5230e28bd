package semantic

import "time"

// Entry is a record ready to be written to a collection: the source
// fields as payload plus the embedding vector. Key is the natural key
// for keyed collections and empty for append-only ones.
type Entry struct {
	Key     string
	Vector  []float32
	Payload map[string]any
}

// Match is a single similarity search hit. Similarity is the store's
// cosine score: bounded, higher is more similar. A Match only lives for
// the duration of one retrieval call.
type Match struct {
	ID         string            `json:"id"`
	Similarity float32           `json:"similarity"`
	Question   string            `json:"question,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Category   string            `json:"category,omitempty"`
	Content    string            `json:"content,omitempty"`
	CreatedAt  time.Time         `json:"created_at,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}
