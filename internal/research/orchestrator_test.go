package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
)

type fakeClient struct {
	content string
	err     error
	calls   int
}

func (f *fakeClient) Query(_ context.Context, question string) (Answer, error) {
	f.calls++
	if f.err != nil {
		return Answer{}, f.err
	}
	return Answer{Query: question, Content: f.content, Raw: []byte(`{"ok":true}`)}, nil
}

// fakeGate accepts content unless it contains reject.
type fakeGate struct {
	mu     sync.Mutex
	reject string
	fail   string
	writes []memory.Item
	bypass []bool
}

func (g *fakeGate) Store(_ context.Context, item memory.Item, bypass bool) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != "" && strings.Contains(item.Content, g.fail) {
		return "", false, errors.New("store unavailable")
	}
	if !bypass && g.reject != "" && strings.Contains(item.Content, g.reject) {
		return "", false, nil
	}
	g.writes = append(g.writes, item)
	g.bypass = append(g.bypass, bypass)
	return "mem-" + string(rune('a'+len(g.writes)-1)), true, nil
}

const twoInsights = "• The first insight talks about generative art and its digital roots in code.\n\n" +
	"• The second insight is off-brand filler that the alignment gate will reject."

const threeInsights = twoInsights + "\n\n• A third insight about internet subcultures and their visual language."

func newTestOrchestrator(t *testing.T, client Client, gate Storer) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{Client: client, Gate: gate, MaxInsights: 5})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func boolPtr(b bool) *bool { return &b }

func TestConductAutoApproveStoresAcceptedInsights(t *testing.T) {
	gate := &fakeGate{reject: "off-brand"}
	o := newTestOrchestrator(t, &fakeClient{content: twoInsights}, gate)

	res := o.Conduct(context.Background(), "X", boolPtr(true))
	if res.Status != StatusStored || !res.AutoApproved {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Count != 2 || res.StoredCount != 1 || len(res.MemoryIDs) != 1 {
		t.Fatalf("expected 2 insights and 1 stored, got %+v", res)
	}
	if len(gate.writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(gate.writes))
	}
	w := gate.writes[0]
	if w.Kind != "research" || w.Source != "perplexity:"+res.QueryID || len(w.Tags) == 0 {
		t.Fatalf("unexpected memory item %+v", w)
	}
	if len(o.ListPending()) != 0 {
		t.Fatal("auto-approved research must not be parked")
	}
}

func TestConductParksPendingResearch(t *testing.T) {
	gate := &fakeGate{}
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, gate)

	res := o.Conduct(context.Background(), "subcultures", nil)
	if res.Status != StatusPendingApproval || res.AutoApproved || res.Count != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.QueryID, "research_") || len(res.QueryID) != len("research_20060102150405_")+8 {
		t.Fatalf("unexpected query id %q", res.QueryID)
	}
	if len(gate.writes) != 0 {
		t.Fatal("pending research must not write")
	}

	p, ok := o.GetPending(res.QueryID)
	if !ok || p.Query != "subcultures" || len(p.Insights) != 3 || string(p.Answer.Raw) != `{"ok":true}` {
		t.Fatalf("unexpected pending entry %+v", p)
	}
	p.Insights[0].Content = "mutated"
	again, _ := o.GetPending(res.QueryID)
	if again.Insights[0].Content == "mutated" {
		t.Fatal("GetPending leaked internal state")
	}
}

func TestConductUsesConfiguredDefault(t *testing.T) {
	o, err := NewOrchestrator(OrchestratorConfig{Client: &fakeClient{content: twoInsights}, Gate: &fakeGate{}, AutoApprove: true})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if res := o.Conduct(context.Background(), "q", nil); res.Status != StatusStored {
		t.Fatalf("expected configured auto approval, got %+v", res)
	}
	if res := o.Conduct(context.Background(), "q", boolPtr(false)); res.Status != StatusPendingApproval {
		t.Fatalf("expected explicit override, got %+v", res)
	}
}

func TestConductReportsClientErrors(t *testing.T) {
	o := newTestOrchestrator(t, &fakeClient{err: &APIError{Kind: KindAuth, Message: "Authentication failed. Check your API key."}}, &fakeGate{})
	res := o.Conduct(context.Background(), "q", nil)
	if res.Status != StatusError || !strings.Contains(res.Error, "Authentication failed") {
		t.Fatalf("unexpected result %+v", res)
	}
	if res := o.Conduct(context.Background(), "  ", nil); res.Status != StatusError {
		t.Fatalf("expected error for empty query, got %+v", res)
	}
}

func TestApproveFullSetRemovesEntry(t *testing.T) {
	gate := &fakeGate{}
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, gate)
	id := o.Conduct(context.Background(), "q", nil).QueryID

	res := o.Approve(context.Background(), id, []int{2, 0, 1, 7, -1}, false)
	if res.Status != StatusStored || res.StoredCount != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := o.GetPending(id); ok {
		t.Fatal("fully approved research should be gone")
	}
	if again := o.Approve(context.Background(), id, []int{0}, false); again.Status != StatusError || again.Error != ErrNotFound.Error() {
		t.Fatalf("expected not found, got %+v", again)
	}
}

func TestApprovePartialKeepsEntryAndAllowsDuplicates(t *testing.T) {
	gate := &fakeGate{}
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, gate)
	id := o.Conduct(context.Background(), "q", nil).QueryID

	for i := 0; i < 2; i++ {
		res := o.Approve(context.Background(), id, []int{1}, true)
		if res.Status != StatusStored || res.StoredCount != 1 {
			t.Fatalf("approval %d: unexpected result %+v", i, res)
		}
	}
	p, ok := o.GetPending(id)
	if !ok || len(p.Insights) != 3 {
		t.Fatalf("partial approval must keep the full list, got ok=%v %+v", ok, p)
	}
	if len(gate.writes) != 2 || gate.writes[0].Content != gate.writes[1].Content || !gate.bypass[0] {
		t.Fatalf("expected the same insight stored twice with bypass, got %+v", gate.writes)
	}
}

func TestApproveRepeatedIndexStoresEachOccurrence(t *testing.T) {
	gate := &fakeGate{}
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, gate)
	id := o.Conduct(context.Background(), "q", nil).QueryID

	res := o.Approve(context.Background(), id, []int{0, 0, 2}, true)
	if res.Status != StatusStored || res.Count != 3 || res.StoredCount != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(gate.writes) != 3 || gate.writes[0].Content != gate.writes[1].Content {
		t.Fatalf("expected the repeated insight stored twice, got %+v", gate.writes)
	}
	if _, ok := o.GetPending(id); !ok {
		t.Fatal("two distinct indices out of three must keep the entry")
	}
}

func TestApproveInvalidIndicesDoesNotMutate(t *testing.T) {
	gate := &fakeGate{}
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, gate)
	id := o.Conduct(context.Background(), "q", nil).QueryID

	res := o.Approve(context.Background(), id, []int{3, -2}, false)
	if res.Status != StatusError || res.Error != ErrNoValidIndices.Error() {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := o.GetPending(id); !ok || len(gate.writes) != 0 {
		t.Fatal("invalid approval must not change state")
	}
}

func TestApproveSkipsFailedWrites(t *testing.T) {
	gate := &fakeGate{fail: "second insight"}
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, gate)
	id := o.Conduct(context.Background(), "q", nil).QueryID

	res := o.Approve(context.Background(), id, []int{0, 1, 2}, false)
	if res.Status != StatusStored || res.StoredCount != 2 {
		t.Fatalf("expected 2 stored around the failure, got %+v", res)
	}
}

func TestRejectThenGetPending(t *testing.T) {
	o := newTestOrchestrator(t, &fakeClient{content: twoInsights}, &fakeGate{})
	id := o.Conduct(context.Background(), "q", nil).QueryID

	if res := o.Reject(id); res.Status != StatusRejected || res.QueryID != id {
		t.Fatalf("unexpected reject result %+v", res)
	}
	if _, ok := o.GetPending(id); ok {
		t.Fatal("rejected research still pending")
	}
	if res := o.Reject(id); res.Status != StatusError {
		t.Fatalf("second reject should fail, got %+v", res)
	}
}

func TestListPendingAndUniqueIDs(t *testing.T) {
	o := newTestOrchestrator(t, &fakeClient{content: twoInsights}, &fakeGate{})
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id := o.Conduct(context.Background(), "q", nil).QueryID
		if seen[id] {
			t.Fatalf("duplicate query id %s", id)
		}
		seen[id] = true
	}
	list := o.ListPending()
	if len(list) != 20 || list[0].Count != 2 {
		t.Fatalf("unexpected pending list %+v", list)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.Before(list[i-1].CreatedAt) {
			t.Fatal("pending list not ordered by creation time")
		}
	}
}

func TestConcurrentApproveAndReject(t *testing.T) {
	o := newTestOrchestrator(t, &fakeClient{content: threeInsights}, &fakeGate{})
	id := o.Conduct(context.Background(), "q", nil).QueryID

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			o.Approve(context.Background(), id, []int{0}, false)
		}()
		go func() {
			defer wg.Done()
			if p, ok := o.GetPending(id); ok && len(p.Insights) != 3 {
				t.Errorf("observed partial entry with %d insights", len(p.Insights))
			}
		}()
	}
	o.Reject(id)
	wg.Wait()
	if _, ok := o.GetPending(id); ok {
		t.Fatal("entry survived reject")
	}
}
