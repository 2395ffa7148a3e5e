package llm

import "context"

// zhipuProvider implements Provider for Zhipu AI (GLM models). The paas v4
// API is OpenAI-compatible, so only the base URL and path prefix differ.
//
// Typical models: glm-4-plus for chat, embedding-2 (1024 dim) for embeddings.
type zhipuProvider struct {
	base client
}

// NewZhipu creates a provider for Zhipu AI.
func NewZhipu(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://open.bigmodel.cn"
	}
	return &zhipuProvider{base: newClientPrefix(cfg, "/api/paas/v4")}
}

func (p *zhipuProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *zhipuProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
