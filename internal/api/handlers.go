package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/internal/research"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
	"github.com/MarkAustinGrow/marvins-memory/pkg/middleware"
)

type Config struct {
	Memories MemoryService
	Research ResearchService
	// Tweets is optional; POST /tweets/process answers 503 without it.
	Tweets  TweetBatcher
	Profile ProfileProvider
	Logger  logging.Logger
}

type Handler struct {
	memories MemoryService
	research ResearchService
	tweets   TweetBatcher
	profile  ProfileProvider
	logger   logging.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Handler{
		memories: cfg.Memories,
		research: cfg.Research,
		tweets:   cfg.Tweets,
		profile:  cfg.Profile,
		logger:   cfg.Logger,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/memories", h.CreateMemory)
	r.GET("/memories", h.ListMemories)
	r.GET("/memories/search", h.SearchMemories)
	r.GET("/memories/count", h.CountMemories)
	r.DELETE("/memories/:id", h.DeleteMemory)

	r.POST("/research", h.ConductResearch)
	r.GET("/research/pending", h.ListPending)
	r.GET("/research/pending/:id", h.GetPending)
	r.POST("/research/pending/:id/approve", h.ApproveResearch)
	r.POST("/research/pending/:id/reject", h.RejectResearch)

	r.POST("/tweets/process", h.ProcessTweets)
	r.GET("/character", h.Character)
}

type createMemoryRequest struct {
	Content         string   `json:"content"`
	Type            string   `json:"type"`
	Source          string   `json:"source"`
	Tags            []string `json:"tags"`
	BypassAlignment bool     `json:"bypass_alignment"`
}

func (h *Handler) CreateMemory(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	id, stored, err := h.memories.Create(c.Request.Context(), memory.Item{
		Content: req.Content,
		Kind:    req.Type,
		Source:  req.Source,
		Tags:    req.Tags,
	}, req.BypassAlignment)
	switch {
	case errors.Is(err, memory.ErrInvalidKind), errors.Is(err, memory.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.fail(c, err, "Failed to store memory")
		return
	case !stored:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Memory did not meet alignment threshold"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) SearchMemories(c *gin.Context) {
	text := strings.TrimSpace(c.Query("query"))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}
	limit, err := intQuery(c, "limit", 5)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, ok := h.memoryQuery(c)
	if !ok {
		return
	}
	memories, err := h.memories.Search(c.Request.Context(), text, limit, q)
	if h.queryFailed(c, err, "Failed to search memories") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

func (h *Handler) ListMemories(c *gin.Context) {
	q, ok := h.memoryQuery(c)
	if !ok {
		return
	}
	memories, err := h.memories.List(c.Request.Context(), q)
	if h.queryFailed(c, err, "Failed to list memories") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

func (h *Handler) CountMemories(c *gin.Context) {
	q, ok := h.memoryQuery(c)
	if !ok {
		return
	}
	n, err := h.memories.Count(c.Request.Context(), q)
	if h.queryFailed(c, err, "Failed to count memories") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) DeleteMemory(c *gin.Context) {
	err := h.memories.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, memory.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Memory not found"})
		return
	}
	if err != nil {
		h.fail(c, err, "Failed to delete memory")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type researchRequest struct {
	Query       string `json:"query"`
	AutoApprove *bool  `json:"auto_approve"`
}

func (h *Handler) ConductResearch(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": research.StatusError, "error": "query is required"})
		return
	}
	h.writeResult(c, h.research.Conduct(c.Request.Context(), req.Query, req.AutoApprove))
}

func (h *Handler) ListPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": h.research.ListPending()})
}

func (h *Handler) GetPending(c *gin.Context) {
	p, ok := h.research.GetPending(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": research.StatusError, "error": research.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

type approveRequest struct {
	Indices         []int `json:"indices"`
	BypassAlignment bool  `json:"bypass_alignment"`
}

func (h *Handler) ApproveResearch(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": research.StatusError, "error": "Invalid request format"})
		return
	}
	h.writeResult(c, h.research.Approve(c.Request.Context(), c.Param("id"), req.Indices, req.BypassAlignment))
}

func (h *Handler) RejectResearch(c *gin.Context) {
	h.writeResult(c, h.research.Reject(c.Param("id")))
}

func (h *Handler) ProcessTweets(c *gin.Context) {
	if h.tweets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "tweet processing is disabled"})
		return
	}
	res, err := h.tweets.ProcessBatch(c.Request.Context())
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Warn("Tweet batch failed")
		if res.Status == "" {
			res.Status = "error"
		}
		if res.Message == "" {
			res.Message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Character(c *gin.Context) {
	c.JSON(http.StatusOK, h.profile.Current())
}

// memoryQuery reads memory_type, min_alignment and repeated tags.
func (h *Handler) memoryQuery(c *gin.Context) (memory.Query, bool) {
	q := memory.Query{Kind: c.Query("memory_type"), Tags: c.QueryArray("tags")}
	if raw := c.Query("min_alignment"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_alignment must be a number"})
			return q, false
		}
		q.MinAlignment = &v
	}
	return q, true
}

func (h *Handler) queryFailed(c *gin.Context, err error, msg string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, memory.ErrInvalidKind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return true
	}
	h.fail(c, err, msg)
	return true
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	middleware.GetContextLogger(c, h.logger).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// writeResult maps research results onto status codes. The body is always
// the result itself.
func (h *Handler) writeResult(c *gin.Context, res research.Result) {
	status := http.StatusOK
	if res.Status == research.StatusError {
		switch res.Error {
		case research.ErrNotFound.Error():
			status = http.StatusNotFound
		case research.ErrNoValidIndices.Error():
			status = http.StatusBadRequest
		default:
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, res)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return v, nil
}
