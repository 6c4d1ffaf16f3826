package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/pkg/clients"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

const researchSystemPrompt = "You are a research assistant that provides accurate, factual information with sources."

// Answer is one research API reply. Content is empty when the reply did not
// have the expected shape; Raw keeps the body for audit.
type Answer struct {
	Query   string          `json:"query"`
	Content string          `json:"content"`
	Model   string          `json:"model,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Client asks a search-backed model one question.
type Client interface {
	Query(ctx context.Context, question string) (Answer, error)
}

type PerplexityConfig struct {
	APIKey string
	APIURL string
	Model  string
	// Timeout bounds each attempt.
	Timeout     time.Duration
	MaxAttempts int
	// Backoff doubles from BaseBackoff up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Breaker     *clients.CircuitBreaker
	Logger      logging.Logger
}

type PerplexityClient struct {
	client *http.Client
	policy clients.RetryPolicy
	apiKey string
	url    string
	model  string
}

func NewPerplexityClient(cfg PerplexityConfig) (*PerplexityClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("perplexity API key is not set")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.perplexity.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "pplx-70b-online"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}

	policy := clients.DefaultRetryPolicy("perplexity")
	policy.MaxAttempts = cfg.MaxAttempts
	policy.BaseDelay = cfg.BaseBackoff
	policy.MaxDelay = cfg.MaxBackoff
	policy.ShouldRetry = isRetryable
	policy.Breaker = cfg.Breaker
	policy.Logger = cfg.Logger

	return &PerplexityClient{
		client: clients.NewHTTPClient(cfg.Timeout),
		policy: policy,
		apiKey: cfg.APIKey,
		url:    strings.TrimRight(cfg.APIURL, "/") + "/chat/completions",
		model:  cfg.Model,
	}, nil
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
	Query    string              `json:"query"`
}

type perplexityResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Query posts the question with bounded retry. Rate limits, server errors,
// timeouts and network failures are retried with exponential backoff.
// Authentication and other client errors return at once. When attempts run
// out the last failure is returned.
func (c *PerplexityClient) Query(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuery
	}
	body, err := json.Marshal(perplexityRequest{
		Model: c.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: researchSystemPrompt},
			{Role: "user", Content: question},
		},
		Query: question,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("marshal research request: %w", err)
	}

	start := time.Now()
	raw, err := clients.Retry(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		researchAttempts.Inc()
		return c.post(ctx, body)
	})
	researchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return Answer{}, err
	}
	return parseAnswer(question, raw), nil
}

func (c *PerplexityClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Kind: KindClient, Message: "create research request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Message: "Request error", Err: err}
	}
	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return &APIError{Kind: KindAuth, StatusCode: code, Message: "Authentication failed. Check your API key."}
	case code == http.StatusTooManyRequests:
		return &APIError{Kind: KindRateLimit, StatusCode: code, Message: "Rate limit exceeded"}
	case code >= 500 && code < 600:
		return &APIError{Kind: KindServer, StatusCode: code, Message: fmt.Sprintf("Server error: %d", code)}
	}
	msg := fmt.Sprintf("Perplexity API error: %d", code)
	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		if detail, ok := payload["error"]; ok {
			msg += fmt.Sprintf(" - %v", detail)
		}
	}
	return &APIError{Kind: KindClient, StatusCode: code, Message: msg}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Message: "Request timed out", Err: err}
	}
	return &APIError{Kind: KindNetwork, Message: "Request error", Err: err}
}

// parseAnswer reads choices[0].message.content. Other shapes yield an
// answer with empty content, which extracts to no insights.
func parseAnswer(question string, raw []byte) Answer {
	answer := Answer{Query: question, Raw: json.RawMessage(raw)}
	var resp perplexityResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		answer.Raw = nil
		return answer
	}
	answer.Model = resp.Model
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		answer.Content = resp.Choices[0].Message.Content
	}
	return answer
}
