package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"frq-generator/config"
)

// NewProvider builds the configured provider wrapped as caller → retry → logging → timeout → base.
func NewProvider(ctx context.Context, cfg config.LLM, logger zerolog.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "vertex":
		base, err = NewVertexProvider(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModels, logger)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "mock":
		base = NewMockProvider().Synthesize()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	p := WithTimeout(base, cfg.Timeout)
	p = WithLogging(p, logger)
	return WithRetry(p, RetryConfigFrom(cfg), logger), nil
}
