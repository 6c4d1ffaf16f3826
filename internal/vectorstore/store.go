// Package vectorstore persists memory payloads next to their embeddings and
// answers nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidFilter is returned when a filter names an unknown field or
	// uses a clause shape the field does not support.
	ErrInvalidFilter = errors.New("vectorstore: invalid filter")
	// ErrNotFound is returned by Delete for unknown ids.
	ErrNotFound = errors.New("vectorstore: record not found")
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")
)

// Payload field names, shared by filters and both backends.
const (
	FieldContent           = "content"
	FieldType              = "type"
	FieldSource            = "source"
	FieldTimestamp         = "timestamp"
	FieldTags              = "tags"
	FieldAlignmentScore    = "alignment_score"
	FieldMatchedAspects    = "matched_aspects"
	FieldPersonaVersion    = "persona_version"
	FieldAlignmentBypassed = "alignment_bypassed"
)

// Payload is the field set stored with every vector.
type Payload struct {
	Content           string    `json:"content"`
	Type              string    `json:"type"`
	Source            string    `json:"source"`
	Timestamp         time.Time `json:"timestamp"`
	Tags              []string  `json:"tags"`
	AlignmentScore    float64   `json:"alignment_score"`
	MatchedAspects    []string  `json:"matched_aspects"`
	PersonaVersion    string    `json:"persona_version"`
	AlignmentBypassed bool      `json:"alignment_bypassed"`
}

// Record is a stored payload. Score is the cosine similarity for search
// results and zero otherwise.
type Record struct {
	ID      string
	Payload Payload
	Score   float64
}

// Store is the KNN store contract used by the memory service.
type Store interface {
	Upsert(ctx context.Context, vector []float32, payload Payload) (string, error)
	Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Record, error)
	// Scroll returns one page ordered by id. An empty next token means the
	// last page was returned.
	Scroll(ctx context.Context, filter *Filter, batchSize int, offset string) (records []Record, next string, err error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, filter *Filter) (int, error)
	Ping(ctx context.Context) error
}

// ScrollAll walks every page of a filtered scroll.
func ScrollAll(ctx context.Context, s Store, filter *Filter, batchSize int) ([]Record, error) {
	var (
		all    []Record
		offset string
	)
	for {
		page, next, err := s.Scroll(ctx, filter, batchSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" || len(page) == 0 {
			return all, nil
		}
		offset = next
	}
}
