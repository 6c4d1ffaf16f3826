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

type OpenAIProvider struct {
	client *http.Client
	policy clients.RetryPolicy
	apiKey string
	apiURL string
	model  string
	name   string
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	return newOpenAICompatible(cfg, "openai", "https://api.openai.com/v1")
}

func newOpenAICompatible(cfg Config, name, defaultURL string) *OpenAIProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultURL
	}
	return &OpenAIProvider{
		client: clients.NewHTTPClient(cfg.Timeout),
		policy: cfg.retryPolicy(name),
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
		name:   name,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if p.model == "" {
		return Response{}, fmt.Errorf("%s model is required", p.name)
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	reqBody := openAIRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		reqBody.MaxTokens = req.MaxTokens
	}
	if req.JSON {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	body, err := postJSON(ctx, p.client, p.policy, p.name, p.apiURL+"/chat/completions", headers, reqBody)
	if err != nil {
		return Response{}, err
	}

	var out openAIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(out.Choices) == 0 {
		return Response{}, errors.New(p.name + ": response has no choices")
	}
	return Response{Content: out.Choices[0].Message.Content, Model: out.Model}, nil
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
