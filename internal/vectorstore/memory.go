package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const memoryCollection = "marvin_memories"

// MemoryStore is an in-process store backed by chromem-go. chromem only
// filters on exact string metadata, so payloads are kept alongside the
// collection and filters are evaluated here.
type MemoryStore struct {
	dimensions int
	col        *chromem.Collection

	mu      sync.RWMutex
	records map[string]Payload
}

func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vectorstore: invalid embedding dimensions: %d", dimensions)
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(memoryCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create collection: %w", err)
	}
	return &MemoryStore{
		dimensions: dimensions,
		col:        col,
		records:    make(map[string]Payload),
	}, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, vector []float32, payload Payload) (string, error) {
	if len(vector) != s.dimensions {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	payload.Tags = nonNil(slices.Clone(payload.Tags))
	payload.MatchedAspects = nonNil(slices.Clone(payload.MatchedAspects))

	id := uuid.New().String()
	err := s.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   payload.Content,
		Embedding: slices.Clone(vector),
		Metadata: map[string]string{
			FieldType:   payload.Type,
			FieldSource: payload.Source,
		},
	})
	if err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.records[id] = payload
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if limit <= 0 {
		limit = 5
	}
	// Holding the read lock keeps Delete from shrinking the collection
	// below total between Count and QueryEmbedding.
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.col.Count()
	if total == 0 {
		return []Record{}, nil
	}

	// Rank everything, then filter; chromem's where clause cannot express
	// ranges or list membership.
	results, err := s.col.QueryEmbedding(ctx, vector, total, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]Record, 0, limit)
	for _, res := range results {
		payload, ok := s.records[res.ID]
		if !ok || !filter.Matches(payload) {
			continue
		}
		out = append(out, Record{ID: res.ID, Payload: clonePayload(payload), Score: finite(float64(res.Similarity))})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Scroll(_ context.Context, filter *Filter, batchSize int, offset string) ([]Record, string, error) {
	if err := filter.Validate(); err != nil {
		return nil, "", err
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		if id > offset {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var page []Record
	for _, id := range ids {
		payload := s.records[id]
		if !filter.Matches(payload) {
			continue
		}
		page = append(page, Record{ID: id, Payload: clonePayload(payload)})
		if len(page) == batchSize {
			return page, id, nil
		}
	}
	return page, "", nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, filter *Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, payload := range s.records {
		if filter.Matches(payload) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func clonePayload(p Payload) Payload {
	p.Tags = slices.Clone(p.Tags)
	p.MatchedAspects = slices.Clone(p.MatchedAspects)
	return p
}
