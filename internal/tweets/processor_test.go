package tweets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/internal/curiosity"
	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/internal/research"
)

type memorySource struct {
	mu         sync.Mutex
	candidates []Candidate
	archived   map[int64][]string
	archiveErr map[int64]error
	fetches    int
}

func newMemorySource(n int) *memorySource {
	s := &memorySource{archived: map[int64][]string{}, archiveErr: map[int64]error{}}
	for i := 1; i <= n; i++ {
		s.candidates = append(s.candidates, Candidate{
			ID:       int64(i),
			TweetID:  "tw" + string(rune('0'+i)),
			Text:     "tweet number " + string(rune('0'+i)),
			VibeTags: []string{"glitch", "technology"},
		})
	}
	return s
}

func (s *memorySource) Candidates(_ context.Context, limit int) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	var out []Candidate
	for _, c := range s.candidates {
		if _, done := s.archived[c.ID]; !done && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memorySource) MarkProcessed(_ context.Context, id int64, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.archiveErr[id]; err != nil {
		return err
	}
	s.archived[id] = ids
	return nil
}

type oracleFunc func(text string) curiosity.Evaluation

func (f oracleFunc) Evaluate(_ context.Context, text string) curiosity.Evaluation { return f(text) }

func curious(text string) curiosity.Evaluation {
	return curiosity.Evaluation{IsWorthResearching: true, ResearchQuestion: "what is " + text}
}

type fakeResearcher struct {
	mu       sync.Mutex
	queries  []string
	err      error
	insights []research.Insight
}

func (r *fakeResearcher) Research(_ context.Context, q string) ([]research.Insight, research.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.err != nil {
		return nil, research.Answer{}, r.err
	}
	return r.insights, research.Answer{Query: q}, nil
}

type recordingGate struct {
	mu     sync.Mutex
	items  []memory.Item
	bypass []bool
}

func (g *recordingGate) Store(_ context.Context, item memory.Item, bypass bool) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items = append(g.items, item)
	g.bypass = append(g.bypass, bypass)
	return "mem-" + item.Source + "-" + string(rune('a'+len(g.items)-1)), true, nil
}

func oneInsight() []research.Insight {
	return []research.Insight{{Content: "Glitch art repurposes digital errors.", Tags: []string{"art", "technology"}}}
}

func newTestProcessor(t *testing.T, src Source, oracle Oracle, r Researcher, g research.Storer) *Processor {
	t.Helper()
	p, err := NewProcessor(ProcessorConfig{Source: src, Oracle: oracle, Researcher: r, Gate: g, BatchLimit: 10})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return p
}

func TestProcessBatchIsolatesOracleFailure(t *testing.T) {
	src := newMemorySource(5)
	oracle := oracleFunc(func(text string) curiosity.Evaluation {
		if strings.HasSuffix(text, "3") {
			panic("llm exploded")
		}
		return curious(text)
	})
	r := &fakeResearcher{insights: oneInsight()}
	g := &recordingGate{}

	res, err := newTestProcessor(t, src, oracle, r, g).ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(src.archived) != 5 {
		t.Fatalf("expected all 5 candidates archived, got %d", len(src.archived))
	}
	if res.FailedCount != 0 || res.ProcessedCount != 5 || res.MemoryCount != 4 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if got := src.archived[3]; len(got) != 0 {
		t.Fatalf("candidate 3 should have no memories, got %v", got)
	}
	if res.Results[2].Outcome != OutcomeSkipped {
		t.Fatalf("expected skip for candidate 3, got %s", res.Results[2].Outcome)
	}
	if len(r.queries) != 4 {
		t.Fatalf("expected 4 research calls, got %d", len(r.queries))
	}
}

func TestProcessBatchStoresTweetMemories(t *testing.T) {
	src := newMemorySource(1)
	r := &fakeResearcher{insights: oneInsight()}
	g := &recordingGate{}

	res, err := newTestProcessor(t, src, oracleFunc(curious), r, g).ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(g.items) != 1 || !g.bypass[0] {
		t.Fatalf("expected one bypassed write, got %+v", g.items)
	}
	item := g.items[0]
	if item.Content != "Glitch art repurposes digital errors.\n\nBased on tweet: \"tweet number 1\"" {
		t.Fatalf("unexpected content %q", item.Content)
	}
	if item.Kind != "research" || item.Source != "tweet:tw1" {
		t.Fatalf("unexpected kind/source %q %q", item.Kind, item.Source)
	}
	if strings.Join(item.Tags, ",") != "art,technology,glitch" {
		t.Fatalf("unexpected tags %v", item.Tags)
	}
	if !strings.Contains(r.queries[0], "'what is tweet number 1'") || !strings.HasPrefix(r.queries[0], "Can you explain the cultural or artistic context") {
		t.Fatalf("unexpected research prompt %q", r.queries[0])
	}
	if got := src.archived[1]; len(got) != 1 || got[0] != res.Results[0].MemoryIDs[0] {
		t.Fatalf("archive should record memory ids, got %v", got)
	}
}

func TestProcessBatchFallsBackToTweetText(t *testing.T) {
	src := newMemorySource(1)
	r := &fakeResearcher{}
	oracle := oracleFunc(func(string) curiosity.Evaluation {
		return curiosity.Evaluation{IsWorthResearching: true}
	})
	if _, err := newTestProcessor(t, src, oracle, r, &recordingGate{}).ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !strings.Contains(r.queries[0], "'tweet number 1'") {
		t.Fatalf("expected tweet text in prompt, got %q", r.queries[0])
	}
}

func TestProcessBatchCountsOnlyArchiveFailures(t *testing.T) {
	src := newMemorySource(3)
	src.archiveErr[2] = errors.New("db down")
	r := &fakeResearcher{err: errors.New("rate limited")}

	res, err := newTestProcessor(t, src, oracleFunc(curious), r, &recordingGate{}).ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if res.FailedCount != 1 || res.ProcessedCount != 2 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if res.Results[0].Outcome != OutcomeResearchFailed || res.Results[1].Outcome != OutcomeArchiveFailed {
		t.Fatalf("unexpected outcomes %+v", res.Results)
	}
	if _, ok := src.archived[1]; !ok {
		t.Fatal("research failure must still archive")
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	res, err := newTestProcessor(t, newMemorySource(0), oracleFunc(curious), &fakeResearcher{}, &recordingGate{}).ProcessBatch(context.Background())
	if err != nil || res.Status != "success" || res.Message != "No tweets to process" {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestProcessBatchStopsOnCancel(t *testing.T) {
	src := newMemorySource(3)
	ctx, cancel := context.WithCancel(context.Background())
	oracle := oracleFunc(func(string) curiosity.Evaluation {
		cancel()
		return curiosity.Evaluation{}
	})
	p, err := NewProcessor(ProcessorConfig{
		Source: src, Oracle: oracle, Researcher: &fakeResearcher{}, Gate: &recordingGate{},
		ItemDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	res, err := p.ProcessBatch(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Status != "cancelled" || len(res.Results) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := src.archived[1]; !ok {
		t.Fatal("in-flight candidate must still be archived")
	}
}

type blockingOracle struct {
	entered chan struct{}
	release chan struct{}
}

func (o *blockingOracle) Evaluate(context.Context, string) curiosity.Evaluation {
	o.entered <- struct{}{}
	<-o.release
	return curiosity.Evaluation{}
}

func TestProcessBatchSharesConcurrentRuns(t *testing.T) {
	src := newMemorySource(1)
	oracle := &blockingOracle{entered: make(chan struct{}, 1), release: make(chan struct{})}
	p := newTestProcessor(t, src, oracle, &fakeResearcher{}, &recordingGate{})

	var wg sync.WaitGroup
	results := make([]BatchResult, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = p.ProcessBatch(context.Background())
	}()
	<-oracle.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = p.ProcessBatch(context.Background())
	}()
	// Give the second caller time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(oracle.release)
	wg.Wait()

	if src.fetches != 1 {
		t.Fatalf("expected one shared batch, got %d fetches", src.fetches)
	}
	if results[0].ProcessedCount != 1 || results[1].ProcessedCount != 1 {
		t.Fatalf("both callers should see the batch result, got %+v", results)
	}
}

func TestProcessBatchSurvivesFirstCallerCancel(t *testing.T) {
	src := newMemorySource(2)
	oracle := &blockingOracle{entered: make(chan struct{}, 1), release: make(chan struct{})}
	p := newTestProcessor(t, src, oracle, &fakeResearcher{}, &recordingGate{})

	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	var wg sync.WaitGroup
	results := make([]BatchResult, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = p.ProcessBatch(first)
	}()
	<-oracle.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = p.ProcessBatch(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(oracle.release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i].Status != "success" || results[i].ProcessedCount != 2 {
			t.Fatalf("caller %d: batch should finish for the remaining caller, got %+v", i, results[i])
		}
	}
	if len(src.archived) != 2 {
		t.Fatalf("expected both candidates archived, got %d", len(src.archived))
	}
}

func TestNewProcessorRequiresDependencies(t *testing.T) {
	if _, err := NewProcessor(ProcessorConfig{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestMergeTags(t *testing.T) {
	got := mergeTags([]string{"art", "general"}, []string{"art", "", "punk"})
	if strings.Join(got, ",") != "art,general,punk" {
		t.Fatalf("unexpected tags %v", got)
	}
}
