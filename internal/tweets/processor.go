package tweets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MarkAustinGrow/marvins-memory/internal/curiosity"
	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/internal/research"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

const archiveTimeout = 10 * time.Second

// Oracle decides whether a tweet deserves research.
type Oracle interface {
	Evaluate(ctx context.Context, text string) curiosity.Evaluation
}

// Researcher runs a query and returns the extracted insights.
type Researcher interface {
	Research(ctx context.Context, query string) ([]research.Insight, research.Answer, error)
}

type Outcome string

const (
	OutcomeResearched     Outcome = "researched"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeResearchFailed Outcome = "research_failed"
	OutcomeArchiveFailed  Outcome = "archive_failed"
)

// ItemResult reports what happened to one candidate.
type ItemResult struct {
	ID        int64    `json:"id"`
	TweetID   string   `json:"tweet_id"`
	Outcome   Outcome  `json:"outcome"`
	Question  string   `json:"research_question,omitempty"`
	MemoryIDs []string `json:"memory_ids"`
	Error     string   `json:"error,omitempty"`
}

// BatchResult aggregates a batch. FailedCount counts candidates whose
// archive write failed; research and evaluation failures are reported
// per item only, since those candidates are archived all the same.
type BatchResult struct {
	Status         string       `json:"status"`
	ProcessedCount int          `json:"processed_count"`
	FailedCount    int          `json:"failed_count"`
	MemoryCount    int          `json:"memory_count"`
	Results        []ItemResult `json:"results"`
	Message        string       `json:"message,omitempty"`
}

type ProcessorConfig struct {
	Source     Source
	Oracle     Oracle
	Researcher Researcher
	Gate       research.Storer
	BatchLimit int
	ItemDelay  time.Duration
	Logger     logging.Logger
}

// Processor runs one candidate at a time through curiosity, research and
// storage. Concurrent ProcessBatch calls share a single run.
type Processor struct {
	source     Source
	oracle     Oracle
	researcher Researcher
	gate       research.Storer
	batchLimit int
	itemDelay  time.Duration
	logger     logging.Logger

	group singleflight.Group

	mu        sync.Mutex
	attached  int
	cancelRun context.CancelFunc
}

func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("tweets: source is required")
	case cfg.Oracle == nil:
		return nil, errors.New("tweets: curiosity oracle is required")
	case cfg.Researcher == nil:
		return nil, errors.New("tweets: researcher is required")
	case cfg.Gate == nil:
		return nil, errors.New("tweets: ingestion gate is required")
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 10
	}
	if cfg.ItemDelay < 0 {
		cfg.ItemDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Processor{
		source:     cfg.Source,
		oracle:     cfg.Oracle,
		researcher: cfg.Researcher,
		gate:       cfg.Gate,
		batchLimit: cfg.BatchLimit,
		itemDelay:  cfg.ItemDelay,
		logger:     cfg.Logger,
	}, nil
}

// ProcessBatch processes up to BatchLimit candidates. A caller arriving
// while a batch is in flight waits for it and receives the same result.
// The shared batch stops between candidates only once every attached
// caller's context is done; the result then covers the candidates already
// visited and the context error is returned.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchResult, error) {
	p.mu.Lock()
	p.attached++
	p.mu.Unlock()
	stop := context.AfterFunc(ctx, p.detach)

	v, err, shared := p.group.Do("batch", func() (interface{}, error) {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		p.mu.Lock()
		if p.attached == 0 {
			cancel()
		}
		p.cancelRun = cancel
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			p.cancelRun = nil
			p.mu.Unlock()
		}()
		return p.run(runCtx)
	})
	if stop() {
		p.detach()
	}
	if shared {
		p.logger.Debug("Joined in-flight tweet batch")
	}
	res, _ := v.(BatchResult)
	return res, err
}

// detach drops one caller and cancels the running batch when none remain.
func (p *Processor) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached--
	if p.attached == 0 && p.cancelRun != nil {
		p.cancelRun()
	}
}

func (p *Processor) run(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	p.logger.WithField("limit", p.batchLimit).Info("Starting tweet batch")

	candidates, err := p.source.Candidates(ctx, p.batchLimit)
	if err != nil {
		batchRuns.WithLabelValues("error").Inc()
		p.logger.WithError(err).Error("Error fetching candidate tweets")
		return BatchResult{Status: "error", Results: []ItemResult{}, Message: err.Error()}, err
	}
	if len(candidates) == 0 {
		batchRuns.WithLabelValues("empty").Inc()
		p.logger.Info("No candidate tweets found")
		return BatchResult{Status: "success", Results: []ItemResult{}, Message: "No tweets to process"}, nil
	}

	result := BatchResult{Status: "success", Results: make([]ItemResult, 0, len(candidates))}
	for i, c := range candidates {
		if i > 0 && !p.wait(ctx) {
			break
		}
		item := p.process(ctx, c)
		tweetOutcomes.WithLabelValues(string(item.Outcome)).Inc()
		if item.Outcome == OutcomeArchiveFailed {
			result.FailedCount++
		} else {
			result.ProcessedCount++
		}
		result.MemoryCount += len(item.MemoryIDs)
		result.Results = append(result.Results, item)
	}

	if err := ctx.Err(); err != nil {
		result.Status = "cancelled"
		result.Message = fmt.Sprintf("batch stopped after %d of %d tweets", len(result.Results), len(candidates))
		batchRuns.WithLabelValues("cancelled").Inc()
		p.logger.WithError(err).WithField("visited", len(result.Results)).Warn("Tweet batch cancelled")
		return result, err
	}

	batchRuns.WithLabelValues("success").Inc()
	p.logger.WithFields(logging.Fields{
		"processed_count": result.ProcessedCount,
		"failed_count":    result.FailedCount,
		"memory_count":    result.MemoryCount,
		"duration":        time.Since(start),
	}).Info("Tweet batch completed")
	return result, nil
}

// wait sleeps for the inter-item delay and reports whether to continue.
func (p *Processor) wait(ctx context.Context) bool {
	if p.itemDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(p.itemDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// process handles one candidate. The candidate is archived whatever the
// outcome so it is never visited twice.
func (p *Processor) process(ctx context.Context, c Candidate) ItemResult {
	item := ItemResult{ID: c.ID, TweetID: c.TweetID, MemoryIDs: []string{}}
	entry := p.logger.WithFields(logging.Fields{"id": c.ID, "tweet_id": c.TweetID})

	p.research(ctx, c, &item)

	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := p.source.MarkProcessed(archiveCtx, c.ID, item.MemoryIDs); err != nil {
		entry.WithError(err).Error("Error updating tweet status")
		item.Outcome = OutcomeArchiveFailed
		item.Error = err.Error()
		return item
	}
	entry.WithFields(logging.Fields{
		"outcome":      item.Outcome,
		"memory_count": len(item.MemoryIDs),
	}).Info("Tweet processed")
	return item
}

func (p *Processor) research(ctx context.Context, c Candidate, item *ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logging.Fields{
				"tweet_id": c.TweetID,
				"panic":    r,
			}).Error("Tweet processing panic")
			item.Outcome = OutcomeResearchFailed
			item.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	eval := p.evaluate(ctx, c.Text)
	if !eval.IsWorthResearching {
		item.Outcome = OutcomeSkipped
		return
	}
	question := strings.TrimSpace(eval.ResearchQuestion)
	if question == "" {
		question = c.Text
	}
	item.Question = question

	insights, _, err := p.researcher.Research(ctx, researchPrompt(question))
	if err != nil {
		p.logger.WithError(err).WithField("tweet_id", c.TweetID).Error("Research failed for tweet")
		item.Outcome = OutcomeResearchFailed
		item.Error = err.Error()
		return
	}
	item.MemoryIDs = p.storeInsights(ctx, c, insights)
	item.Outcome = OutcomeResearched
}

// evaluate degrades an oracle panic to "not worth researching".
func (p *Processor) evaluate(ctx context.Context, text string) (eval curiosity.Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Warn("Curiosity evaluation panic")
			eval = curiosity.Evaluation{RelevanceExplanation: fmt.Sprintf("Error evaluating content: %v", r)}
		}
	}()
	return p.oracle.Evaluate(ctx, text)
}

// storeInsights writes each insight as a research memory. The alignment
// gate is bypassed: the curiosity filter already judged relevance.
func (p *Processor) storeInsights(ctx context.Context, c Candidate, insights []research.Insight) []string {
	ids := []string{}
	for i, insight := range insights {
		id, stored, err := p.gate.Store(ctx, memory.Item{
			Content: fmt.Sprintf("%s\n\nBased on tweet: \"%s\"", insight.Content, c.Text),
			Kind:    string(memory.KindResearch),
			Source:  "tweet:" + c.TweetID,
			Tags:    mergeTags(insight.Tags, c.VibeTags),
		}, true)
		if err != nil {
			p.logger.WithError(err).WithFields(logging.Fields{
				"tweet_id": c.TweetID,
				"insight":  i,
			}).Warn("Error processing insight")
			continue
		}
		if stored {
			ids = append(ids, id)
		}
	}
	return ids
}

func researchPrompt(subject string) string {
	return fmt.Sprintf("Can you explain the cultural or artistic context of this tweet: '%s' "+
		"Include any relevant subcultures, art movements, or philosophies it relates to. "+
		"Analyze any references, metaphors, or themes present in the tweet. "+
		"Provide historical or contemporary context that helps understand its meaning.", subject)
}

func mergeTags(groups ...[]string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, g := range groups {
		for _, t := range g {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
