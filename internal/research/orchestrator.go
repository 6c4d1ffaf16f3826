package research

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusStored          Status = "stored"
	StatusRejected        Status = "rejected"
	StatusError           Status = "error"
)

// Result is the outcome of every orchestrator operation. Failures are
// reported with StatusError and Error rather than as Go errors.
type Result struct {
	Status       Status    `json:"status"`
	QueryID      string    `json:"query_id,omitempty"`
	Insights     []Insight `json:"insights,omitempty"`
	AutoApproved bool      `json:"auto_approved"`
	Count        int       `json:"count"`
	StoredCount  int       `json:"stored_count"`
	MemoryIDs    []string  `json:"memory_ids,omitempty"`
	Error        string    `json:"error,omitempty"`
}

func errorResult(queryID string, err error) Result {
	return Result{Status: StatusError, QueryID: queryID, Error: err.Error()}
}

// PendingResearch is research parked for human review.
type PendingResearch struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Insights  []Insight `json:"insights"`
	CreatedAt time.Time `json:"created_at"`
	Answer    Answer    `json:"raw_response"`
}

// PendingSummary is one line of the pending list.
type PendingSummary struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// Storer is the ingestion gate.
type Storer interface {
	Store(ctx context.Context, item memory.Item, bypass bool) (id string, stored bool, err error)
}

type OrchestratorConfig struct {
	Client        Client
	Gate          Storer
	AutoApprove   bool
	MaxInsights   int
	MinConfidence float64
	Logger        logging.Logger
}

// Orchestrator runs research queries and owns the pending-approval queue.
// The queue lives in memory only and is lost on restart.
type Orchestrator struct {
	client        Client
	gate          Storer
	autoApprove   bool
	maxInsights   int
	minConfidence float64
	logger        logging.Logger
	now           func() time.Time

	mu      sync.RWMutex
	pending map[string]*PendingResearch
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Client == nil {
		return nil, errors.New("research: client is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("research: ingestion gate is required")
	}
	if cfg.MaxInsights <= 0 {
		cfg.MaxInsights = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Orchestrator{
		client:        cfg.Client,
		gate:          cfg.Gate,
		autoApprove:   cfg.AutoApprove,
		maxInsights:   cfg.MaxInsights,
		minConfidence: cfg.MinConfidence,
		logger:        cfg.Logger,
		now:           time.Now,
		pending:       make(map[string]*PendingResearch),
	}, nil
}

// Research queries the API and extracts insights without parking or
// storing them.
func (o *Orchestrator) Research(ctx context.Context, query string) ([]Insight, Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Answer{}, ErrEmptyQuery
	}
	answer, err := o.client.Query(ctx, query)
	if err != nil {
		researchCalls.WithLabelValues(string(StatusError)).Inc()
		return nil, Answer{}, fmt.Errorf("research query: %w", err)
	}
	insights := Extract(answer.Content, query, ExtractOptions{
		MaxInsights:   o.maxInsights,
		MinConfidence: o.minConfidence,
		Now:           o.now,
	})
	insightsExtracted.Add(float64(len(insights)))
	if answer.Content == "" {
		o.logger.WithField("query", query).Warn("Research answer had no content")
	}
	return insights, answer, nil
}

// Conduct runs a query and either stores the insights at once (auto
// approval, from the argument or the configured default) or parks them
// under a new query id.
func (o *Orchestrator) Conduct(ctx context.Context, query string, autoApprove *bool) Result {
	approve := o.autoApprove
	if autoApprove != nil {
		approve = *autoApprove
	}

	insights, answer, err := o.Research(ctx, query)
	if err != nil {
		o.logger.WithError(err).WithField("query", query).Error("Error conducting research")
		return errorResult("", err)
	}
	queryID := o.newQueryID()

	if !approve {
		o.mu.Lock()
		o.pending[queryID] = &PendingResearch{
			QueryID:   queryID,
			Query:     strings.TrimSpace(query),
			Insights:  insights,
			CreatedAt: o.now().UTC(),
			Answer:    answer,
		}
		pendingResearch.Set(float64(len(o.pending)))
		o.mu.Unlock()

		researchCalls.WithLabelValues(string(StatusPendingApproval)).Inc()
		o.logger.WithFields(logging.Fields{
			"query_id": queryID,
			"insights": len(insights),
		}).Info("Research pending approval")
		return Result{
			Status:   StatusPendingApproval,
			QueryID:  queryID,
			Insights: cloneInsights(insights),
			Count:    len(insights),
		}
	}

	ids := o.store(ctx, queryID, insights, false)
	researchCalls.WithLabelValues(string(StatusStored)).Inc()
	return Result{
		Status:       StatusStored,
		QueryID:      queryID,
		Insights:     cloneInsights(insights),
		AutoApproved: true,
		Count:        len(insights),
		StoredCount:  len(ids),
		MemoryIDs:    ids,
	}
}

// GetPending returns a copy of a pending entry. ok is false when the id is
// unknown, which is distinct from an entry with no insights.
func (o *Orchestrator) GetPending(queryID string) (PendingResearch, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.pending[queryID]
	if !ok {
		return PendingResearch{}, false
	}
	out := *p
	out.Insights = cloneInsights(p.Insights)
	out.Answer.Raw = slices.Clone(p.Answer.Raw)
	return out, true
}

// ListPending summarizes every pending entry, oldest first.
func (o *Orchestrator) ListPending() []PendingSummary {
	o.mu.RLock()
	out := make([]PendingSummary, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, PendingSummary{QueryID: p.QueryID, Query: p.Query, Count: len(p.Insights), CreatedAt: p.CreatedAt})
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].QueryID < out[j].QueryID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Approve stores the insights at the in-range indices, once per occurrence,
// so a repeated index is stored twice. Approving every index removes the
// entry; a partial approval leaves it intact, so the same indices can be
// approved again and will be stored again.
func (o *Orchestrator) Approve(ctx context.Context, queryID string, indices []int, bypass bool) Result {
	o.mu.RLock()
	p, ok := o.pending[queryID]
	var (
		selected []Insight
		valid    = map[int]bool{}
		total    int
	)
	if ok {
		total = len(p.Insights)
		for _, i := range indices {
			if i >= 0 && i < total {
				selected = append(selected, p.Insights[i])
				valid[i] = true
			}
		}
		selected = cloneInsights(selected)
	}
	o.mu.RUnlock()

	if !ok {
		return errorResult(queryID, ErrNotFound)
	}
	if len(valid) == 0 {
		return errorResult(queryID, ErrNoValidIndices)
	}

	ids := o.store(ctx, queryID, selected, bypass)

	if len(valid) == total {
		o.mu.Lock()
		delete(o.pending, queryID)
		pendingResearch.Set(float64(len(o.pending)))
		o.mu.Unlock()
	}
	o.logger.WithFields(logging.Fields{
		"query_id":     queryID,
		"approved":     len(valid),
		"total":        total,
		"stored_count": len(ids),
	}).Info("Research insights approved")

	return Result{
		Status:      StatusStored,
		QueryID:     queryID,
		Count:       len(selected),
		StoredCount: len(ids),
		MemoryIDs:   ids,
	}
}

// Reject drops a pending entry.
func (o *Orchestrator) Reject(queryID string) Result {
	o.mu.Lock()
	_, ok := o.pending[queryID]
	delete(o.pending, queryID)
	pendingResearch.Set(float64(len(o.pending)))
	o.mu.Unlock()

	if !ok {
		return errorResult(queryID, ErrNotFound)
	}
	o.logger.WithField("query_id", queryID).Info("Research rejected")
	return Result{Status: StatusRejected, QueryID: queryID}
}

// store runs insights through the gate one by one. Rejections and write
// failures skip the insight; the ids actually written are returned.
func (o *Orchestrator) store(ctx context.Context, queryID string, insights []Insight, bypass bool) []string {
	ids := []string{}
	for i, insight := range insights {
		id, stored, err := o.gate.Store(ctx, memory.Item{
			Content: insight.Content,
			Kind:    string(memory.KindResearch),
			Source:  insightSource + ":" + queryID,
			Tags:    insight.Tags,
		}, bypass)
		if err != nil {
			o.logger.WithError(err).WithFields(logging.Fields{
				"query_id": queryID,
				"insight":  i,
			}).Warn("Failed to store research insight")
			continue
		}
		if stored {
			ids = append(ids, id)
		}
	}
	return ids
}

// newQueryID keeps the second-resolution timestamp prefix and adds a random
// suffix so ids minted in the same second stay distinct.
func (o *Orchestrator) newQueryID() string {
	return fmt.Sprintf("research_%s_%s", o.now().Format("20060102150405"), uuid.NewString()[:8])
}

func cloneInsights(in []Insight) []Insight {
	if in == nil {
		return nil
	}
	out := make([]Insight, len(in))
	for i, insight := range in {
		insight.Tags = slices.Clone(insight.Tags)
		out[i] = insight
	}
	return out
}
