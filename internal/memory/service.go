package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkAustinGrow/marvins-memory/internal/vectorstore"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

// ErrNotFound is returned by Delete for unknown ids.
var ErrNotFound = vectorstore.ErrNotFound

const listBatchSize = 100

type ServiceConfig struct {
	Gate     *Gate
	Store    vectorstore.Store
	Embedder Embedder
	Logger   logging.Logger
}

// Service exposes create, search, list, count and delete over the store.
type Service struct {
	gate     *Gate
	store    vectorstore.Store
	embedder Embedder
	logger   logging.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Gate == nil {
		return nil, errors.New("memory: gate is required")
	}
	if cfg.Store == nil {
		cfg.Store = cfg.Gate.store
	}
	if cfg.Embedder == nil {
		cfg.Embedder = cfg.Gate.embedder
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Service{gate: cfg.Gate, store: cfg.Store, embedder: cfg.Embedder, logger: cfg.Logger}, nil
}

// Query narrows search, list and count. A nil MinAlignment means the
// gate threshold; bypassed memories always match the alignment clause.
type Query struct {
	Kind         string
	MinAlignment *float64
	Tags         []string
}

func (s *Service) Create(ctx context.Context, item Item, bypass bool) (string, bool, error) {
	return s.gate.Store(ctx, item, bypass)
}

func (s *Service) Search(ctx context.Context, text string, limit int, q Query) ([]Memory, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 5
	}
	filter, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	vector := s.embedder.Embed(ctx, text)

	records, err := withFilterFallback(s, filter, "search", func(f *vectorstore.Filter) ([]vectorstore.Record, error) {
		return s.store.Search(ctx, vector, limit, f)
	})
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	return toMemories(records), nil
}

func (s *Service) List(ctx context.Context, q Query) ([]Memory, error) {
	filter, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	records, err := withFilterFallback(s, filter, "list", func(f *vectorstore.Filter) ([]vectorstore.Record, error) {
		return vectorstore.ScrollAll(ctx, s.store, f, listBatchSize)
	})
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return toMemories(records), nil
}

func (s *Service) Count(ctx context.Context, q Query) (int, error) {
	filter, err := s.filter(q)
	if err != nil {
		return 0, err
	}
	n, err := withFilterFallback(s, filter, "count", func(f *vectorstore.Filter) (int, error) {
		return s.store.Count(ctx, f)
	})
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logger.WithField("memory_id", id).Info("Memory deleted")
	return nil
}

// filter turns a query into a normalized store filter. Only the memory type
// is validated here; anything else malformed is left for the store to
// reject.
func (s *Service) filter(q Query) (*vectorstore.Filter, error) {
	f := &vectorstore.Filter{}
	if strings.TrimSpace(q.Kind) != "" {
		kind, err := ParseKind(q.Kind)
		if err != nil {
			return nil, err
		}
		f.Must = append(f.Must, vectorstore.MustMatch(vectorstore.FieldType, string(kind)))
	}
	if len(q.Tags) > 0 {
		f.Must = append(f.Must, vectorstore.MatchAny(vectorstore.FieldTags, q.Tags...))
	}
	min := s.gate.MinAlignment()
	if q.MinAlignment != nil {
		min = *q.MinAlignment
	}
	if min > 0 {
		f.Should = []vectorstore.Condition{
			vectorstore.AtLeast(vectorstore.FieldAlignmentScore, min),
			vectorstore.MustMatch(vectorstore.FieldAlignmentBypassed, true),
		}
	}
	return vectorstore.Normalize(f), nil
}

// withFilterFallback retries op unfiltered when the store rejects the
// filter, so a malformed predicate degrades to a wider result instead of
// failing the caller.
func withFilterFallback[T any](s *Service, filter *vectorstore.Filter, op string, call func(*vectorstore.Filter) (T, error)) (T, error) {
	out, err := call(filter)
	if err == nil || filter == nil || !errors.Is(err, vectorstore.ErrInvalidFilter) {
		return out, err
	}
	filterFallbacks.Inc()
	s.logger.WithError(err).WithField("operation", op).Warn("Store rejected filter, retrying unfiltered")
	return call(nil)
}

func toMemories(records []vectorstore.Record) []Memory {
	out := make([]Memory, 0, len(records))
	for _, r := range records {
		out = append(out, Memory{
			ID:                r.ID,
			Content:           r.Payload.Content,
			Kind:              Kind(r.Payload.Type),
			Source:            r.Payload.Source,
			Tags:              nonNilStrings(r.Payload.Tags),
			CreatedAt:         r.Payload.Timestamp,
			AlignmentScore:    r.Payload.AlignmentScore,
			MatchedAspects:    nonNilStrings(r.Payload.MatchedAspects),
			AlignmentBypassed: r.Payload.AlignmentBypassed,
			PersonaVersion:    r.Payload.PersonaVersion,
			Score:             r.Score,
		})
	}
	return out
}
