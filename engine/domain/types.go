// Package domain defines the source record types flowing into the
// ingestion pipeline and their validation rules.
package domain

import "time"

// QARecord is one curated question/answer pair. The question text is
// the natural key of the keyed collection: byte-identical questions
// address the same stored entry; near-duplicate phrasings are distinct
// keys on purpose.
type QARecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// MomentRecord is one dated micro-post. Moments carry no natural key
// and are always appended; re-ingesting the same moment creates a
// second entry.
type MomentRecord struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Reposts   int       `json:"reposts,omitempty"`
	Comments  int       `json:"comments,omitempty"`
	Likes     int       `json:"likes,omitempty"`
}
