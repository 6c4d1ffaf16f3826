package api

import (
	"context"

	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/internal/persona"
	"github.com/MarkAustinGrow/marvins-memory/internal/research"
	"github.com/MarkAustinGrow/marvins-memory/internal/tweets"
)

type MemoryService interface {
	Create(ctx context.Context, item memory.Item, bypass bool) (id string, stored bool, err error)
	Search(ctx context.Context, text string, limit int, q memory.Query) ([]memory.Memory, error)
	List(ctx context.Context, q memory.Query) ([]memory.Memory, error)
	Count(ctx context.Context, q memory.Query) (int, error)
	Delete(ctx context.Context, id string) error
}

type ResearchService interface {
	Conduct(ctx context.Context, query string, autoApprove *bool) research.Result
	GetPending(queryID string) (research.PendingResearch, bool)
	ListPending() []research.PendingSummary
	Approve(ctx context.Context, queryID string, indices []int, bypass bool) research.Result
	Reject(queryID string) research.Result
}

type TweetBatcher interface {
	ProcessBatch(ctx context.Context) (tweets.BatchResult, error)
}

type ProfileProvider interface {
	Current() persona.Profile
}
