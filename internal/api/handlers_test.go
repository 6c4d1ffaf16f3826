package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/internal/persona"
	"github.com/MarkAustinGrow/marvins-memory/internal/research"
	"github.com/MarkAustinGrow/marvins-memory/internal/tweets"
)

type memoryServiceStub struct {
	created   []memory.Item
	bypass    bool
	stored    bool
	createErr error
	lastQuery memory.Query
	lastText  string
	lastLimit int
	memories  []memory.Memory
	deleteErr error
}

func (s *memoryServiceStub) Create(_ context.Context, item memory.Item, bypass bool) (string, bool, error) {
	s.created = append(s.created, item)
	s.bypass = bypass
	if s.createErr != nil {
		return "", false, s.createErr
	}
	if !s.stored {
		return "", false, nil
	}
	return "mem-1", true, nil
}

func (s *memoryServiceStub) Search(_ context.Context, text string, limit int, q memory.Query) ([]memory.Memory, error) {
	s.lastText, s.lastLimit, s.lastQuery = text, limit, q
	return s.memories, nil
}

func (s *memoryServiceStub) List(_ context.Context, q memory.Query) ([]memory.Memory, error) {
	s.lastQuery = q
	if q.Kind == "bogus" {
		return nil, memory.ErrInvalidKind
	}
	return s.memories, nil
}

func (s *memoryServiceStub) Count(_ context.Context, q memory.Query) (int, error) {
	s.lastQuery = q
	return len(s.memories), nil
}

func (s *memoryServiceStub) Delete(context.Context, string) error { return s.deleteErr }

type answerClient struct{ content string }

func (c answerClient) Query(_ context.Context, q string) (research.Answer, error) {
	return research.Answer{Query: q, Content: c.content}, nil
}

type acceptGate struct{ n int }

func (g *acceptGate) Store(context.Context, memory.Item, bool) (string, bool, error) {
	g.n++
	return "stored-id", true, nil
}

type batcherStub struct {
	res tweets.BatchResult
	err error
}

func (b batcherStub) ProcessBatch(context.Context) (tweets.BatchResult, error) { return b.res, b.err }

type harness struct {
	router   *gin.Engine
	memories *memoryServiceStub
	gate     *acceptGate
	research *research.Orchestrator
}

func setupHandler(t *testing.T, batcher TweetBatcher) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gate := &acceptGate{}
	orch, err := research.NewOrchestrator(research.OrchestratorConfig{
		Client: answerClient{content: "• Vaporwave recycles the commercial music of the 1980s into something eerie.\n\n" +
			"• Its visual language leans on early web graphics and classical statues."},
		Gate: gate,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	mem := &memoryServiceStub{stored: true}
	router := gin.New()
	NewHandler(Config{
		Memories: mem,
		Research: orch,
		Tweets:   batcher,
		Profile:  persona.StaticProfiles(persona.DefaultProfile()),
	}).Register(router)
	return &harness{router: router, memories: mem, gate: gate, research: orch}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", resp.Body.String(), err)
	}
	return out
}

func TestCreateMemory(t *testing.T) {
	h := setupHandler(t, nil)
	resp := h.do(http.MethodPost, "/memories", map[string]any{
		"content": "Glitch art is honest.", "type": "thought", "source": "manual", "tags": []string{"art"}, "bypass_alignment": true,
	})
	if resp.Code != http.StatusCreated || decode(t, resp)["id"] != "mem-1" {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}
	if len(h.memories.created) != 1 || h.memories.created[0].Kind != "thought" || !h.memories.bypass {
		t.Fatalf("unexpected create call %+v", h.memories.created)
	}
}

func TestCreateMemoryRejections(t *testing.T) {
	tests := []struct {
		name   string
		stored bool
		err    error
		body   any
		want   int
	}{
		{name: "below threshold", body: map[string]any{"content": "x", "type": "thought"}, want: http.StatusBadRequest},
		{name: "invalid kind", stored: true, err: memory.ErrInvalidKind, body: map[string]any{"content": "x", "type": "dream"}, want: http.StatusBadRequest},
		{name: "malformed body", stored: true, body: "not an object", want: http.StatusBadRequest},
		{name: "store failure", stored: true, err: errors.New("db down"), body: map[string]any{"content": "x", "type": "thought"}, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupHandler(t, nil)
			h.memories.stored = tt.stored
			h.memories.createErr = tt.err
			if resp := h.do(http.MethodPost, "/memories", tt.body); resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestSearchMemoriesParsesQuery(t *testing.T) {
	h := setupHandler(t, nil)
	h.memories.memories = []memory.Memory{{ID: "a", Content: "hit", Score: 0.9}}

	resp := h.do(http.MethodGet, "/memories/search?query=glitch&limit=3&memory_type=research&min_alignment=0.5&tags=art&tags=punk", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	q := h.memories.lastQuery
	if h.memories.lastText != "glitch" || h.memories.lastLimit != 3 || q.Kind != "research" || *q.MinAlignment != 0.5 || len(q.Tags) != 2 {
		t.Fatalf("unexpected search args %q %d %+v", h.memories.lastText, h.memories.lastLimit, q)
	}
	if got := decode(t, resp)["memories"].([]any); len(got) != 1 {
		t.Fatalf("unexpected memories %v", got)
	}

	for _, path := range []string{"/memories/search", "/memories/search?query=x&limit=-1", "/memories/search?query=x&min_alignment=high"} {
		if resp := h.do(http.MethodGet, path, nil); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.Code)
		}
	}
}

func TestListCountAndDelete(t *testing.T) {
	h := setupHandler(t, nil)
	h.memories.memories = []memory.Memory{{ID: "a"}, {ID: "b"}}

	if resp := h.do(http.MethodGet, "/memories?memory_type=tweet", nil); resp.Code != http.StatusOK || h.memories.lastQuery.Kind != "tweet" || h.memories.lastQuery.MinAlignment != nil {
		t.Fatalf("unexpected list %d %+v", resp.Code, h.memories.lastQuery)
	}
	if resp := h.do(http.MethodGet, "/memories?memory_type=bogus", nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad kind, got %d", resp.Code)
	}
	if resp := h.do(http.MethodGet, "/memories/count", nil); resp.Code != http.StatusOK || decode(t, resp)["count"] != float64(2) {
		t.Fatalf("unexpected count %s", resp.Body.String())
	}
	if resp := h.do(http.MethodDelete, "/memories/a", nil); resp.Code != http.StatusOK {
		t.Fatalf("unexpected delete status %d", resp.Code)
	}
	h.memories.deleteErr = memory.ErrNotFound
	if resp := h.do(http.MethodDelete, "/memories/missing", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestResearchFlow(t *testing.T) {
	h := setupHandler(t, nil)

	resp := h.do(http.MethodPost, "/research", map[string]any{"query": "vaporwave"})
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	body := decode(t, resp)
	if body["status"] != "pending_approval" || body["count"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
	id := body["query_id"].(string)

	if got := decode(t, h.do(http.MethodGet, "/research/pending", nil))["pending"].([]any); len(got) != 1 {
		t.Fatalf("unexpected pending list %v", got)
	}
	if resp := h.do(http.MethodGet, "/research/pending/"+id, nil); resp.Code != http.StatusOK || decode(t, resp)["query"] != "vaporwave" {
		t.Fatalf("unexpected pending entry %s", resp.Body.String())
	}

	resp = h.do(http.MethodPost, "/research/pending/"+id+"/approve", map[string]any{"indices": []int{9}})
	if resp.Code != http.StatusBadRequest || decode(t, resp)["error"] != "no valid insight indices provided" {
		t.Fatalf("unexpected invalid approve %d %s", resp.Code, resp.Body.String())
	}

	resp = h.do(http.MethodPost, "/research/pending/"+id+"/approve", map[string]any{"indices": []int{0, 1}, "bypass_alignment": true})
	if resp.Code != http.StatusOK || decode(t, resp)["stored_count"] != float64(2) || h.gate.n != 2 {
		t.Fatalf("unexpected approve %d %s", resp.Code, resp.Body.String())
	}
	if resp := h.do(http.MethodGet, "/research/pending/"+id, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after full approval, got %d", resp.Code)
	}
	resp = h.do(http.MethodPost, "/research/pending/"+id+"/reject", nil)
	if resp.Code != http.StatusNotFound || decode(t, resp)["error"] != "query ID not found" {
		t.Fatalf("unexpected reject %d %s", resp.Code, resp.Body.String())
	}
}

func TestResearchAutoApproveAndValidation(t *testing.T) {
	h := setupHandler(t, nil)
	resp := h.do(http.MethodPost, "/research", map[string]any{"query": "vaporwave", "auto_approve": true})
	if body := decode(t, resp); body["status"] != "stored" || body["auto_approved"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if resp := h.do(http.MethodPost, "/research", map[string]any{"query": " "}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestProcessTweets(t *testing.T) {
	if resp := setupHandler(t, nil).do(http.MethodPost, "/tweets/process", nil); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when disabled, got %d", resp.Code)
	}

	ok := setupHandler(t, batcherStub{res: tweets.BatchResult{Status: "success", ProcessedCount: 3}})
	resp := ok.do(http.MethodPost, "/tweets/process", nil)
	if resp.Code != http.StatusOK || decode(t, resp)["processed_count"] != float64(3) {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}

	failing := setupHandler(t, batcherStub{err: errors.New("db down")})
	resp = failing.do(http.MethodPost, "/tweets/process", nil)
	if resp.Code != http.StatusInternalServerError || decode(t, resp)["status"] != "error" {
		t.Fatalf("unexpected failure response %d %s", resp.Code, resp.Body.String())
	}
}

func TestCharacter(t *testing.T) {
	resp := setupHandler(t, nil).do(http.MethodGet, "/character", nil)
	if resp.Code != http.StatusOK || decode(t, resp)["name"] != persona.DefaultProfile().Name {
		t.Fatalf("unexpected character %s", resp.Body.String())
	}
}
