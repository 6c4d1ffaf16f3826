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

type EmbeddingClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type EmbeddingProvider struct {
	client   *http.Client
	policy   clients.RetryPolicy
	apiKey   string
	apiURL   string
	model    string
	provider string
}

// NewEmbeddingClient builds an OpenAI-style (or Ollama) embeddings client.
// A breaker, when given, fails calls fast while the backend is down.
func NewEmbeddingClient(cfg Config, breaker *clients.CircuitBreaker) (*EmbeddingProvider, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	provider := strings.ToLower(cfg.Provider)
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		if provider == "ollama" {
			apiURL = "http://localhost:11434"
		} else {
			apiURL = "https://api.openai.com/v1"
		}
	}

	policy := cfg.retryPolicy("embeddings")
	policy.Breaker = breaker

	return &EmbeddingProvider{
		client:   clients.NewHTTPClient(cfg.Timeout),
		policy:   policy,
		apiKey:   cfg.APIKey,
		apiURL:   apiURL,
		model:    cfg.Model,
		provider: provider,
	}, nil
}

func (p *EmbeddingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	switch p.provider {
	case "ollama":
		return p.embedOllama(ctx, inputs)
	case "openai", "":
		return p.embedOpenAI(ctx, inputs)
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", p.provider)
	}
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *EmbeddingProvider) embedOpenAI(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := postJSON(ctx, p.client, p.policy, "openai embed", p.apiURL+"/embeddings", p.authHeaders(),
		openAIEmbeddingRequest{Model: p.model, Input: inputs})
	if err != nil {
		return nil, err
	}

	var response openAIEmbeddingResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("openai embed: decode response: %w", err)
	}
	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embed: unexpected embeddings count: %d", len(response.Data))
	}
	vectors := make([][]float32, len(inputs))
	for i, entry := range response.Data {
		idx := entry.Index
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = entry.Embedding
	}
	return vectors, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *EmbeddingProvider) embedOllama(ctx context.Context, inputs []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(inputs))
	for _, input := range inputs {
		body, err := postJSON(ctx, p.client, p.policy, "ollama embed", p.apiURL+"/api/embeddings", nil,
			ollamaEmbeddingRequest{Model: p.model, Prompt: input})
		if err != nil {
			return nil, err
		}
		var response ollamaEmbeddingResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("ollama embed: decode response: %w", err)
		}
		vectors = append(vectors, response.Embedding)
	}
	return vectors, nil
}

func (p *EmbeddingProvider) authHeaders() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// ProbeEmbeddingDimensions makes a single embedding call and returns the
// vector length.
func ProbeEmbeddingDimensions(ctx context.Context, client EmbeddingClient) (int, error) {
	vecs, err := client.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, errors.New("probe returned empty embedding")
	}
	return len(vecs[0]), nil
}
