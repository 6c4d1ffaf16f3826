package llm

// OllamaProvider speaks Ollama's OpenAI-compatible endpoint.
type OllamaProvider struct {
	*OpenAIProvider
}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	return &OllamaProvider{
		OpenAIProvider: newOpenAICompatible(cfg, "ollama", "http://localhost:11434/v1"),
	}
}
