package llm

import "context"

// openAIProvider implements Provider for the OpenAI API and for any service
// exposing the same surface behind a custom base URL.
type openAIProvider struct {
	base client
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &openAIProvider{base: newClient(cfg)}
}

// NewOpenAICompat creates a generic OpenAI-compatible provider for
// self-hosted gateways. BaseURL is required.
func NewOpenAICompat(cfg Config) Provider {
	return &openAIProvider{base: newClient(cfg)}
}

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
