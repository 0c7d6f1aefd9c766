package llm

import (
	"fmt"

	"go.uber.org/zap"

	config "github.com/frostwillmott/applybot/configs"
)

// New builds the configured LLM provider.
func New(cfg *config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.LLMProvider {
	case "ollama":
		return NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
