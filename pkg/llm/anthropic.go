package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkAustinGrow/marvins-memory/pkg/clients"
)

type AnthropicProvider struct {
	client    *http.Client
	policy    clients.RetryPolicy
	apiKey    string
	apiURL    string
	model     string
	maxTokens int
}

const defaultAnthropicMaxTokens = 1024

func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.anthropic.com"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		client:    clients.NewHTTPClient(cfg.Timeout),
		policy:    cfg.retryPolicy("anthropic"),
		apiKey:    cfg.APIKey,
		apiURL:    apiURL,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Complete sends a Messages API request. Anthropic has no JSON response
// mode, so JSON requests get an instruction appended to the system prompt.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if p.model == "" {
		return Response{}, errors.New("anthropic model is required")
	}

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	reqBody := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: req.Temperature,
		Messages:    anthropicMessagesFrom(req.Messages),
	}

	headers := map[string]string{
		"X-API-Key":         p.apiKey,
		"Anthropic-Version": "2023-06-01",
	}

	body, err := postJSON(ctx, p.client, p.policy, "anthropic", p.apiURL+"/v1/messages", headers, reqBody)
	if err != nil {
		return Response{}, err
	}

	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("anthropic: decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, errors.New("anthropic: response has no text content")
	}
	return Response{Content: text.String(), Model: out.Model}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
}

// anthropicMessagesFrom drops system messages; those travel in the system field.
func anthropicMessagesFrom(messages []Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, message := range messages {
		if message.Role == "system" {
			continue
		}
		out = append(out, anthropicMessage{
			Role:    message.Role,
			Content: []anthropicContent{{Type: "text", Text: message.Content}},
		})
	}
	return out
}
