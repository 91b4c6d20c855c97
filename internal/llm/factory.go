package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/hanashi/internal/config"
	"go.uber.org/zap"
)

// New builds the model collaborator selected by cfg.Provider.
func New(cfg *config.ModelConfig, logger *zap.Logger) (ChatModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var (
		m   ChatModel
		err error
	)
	switch cfg.Provider {
	case "anthropic":
		m, err = NewAnthropicModel(os.Getenv(cfg.APIKeyEnv), cfg.BaseURL, cfg.Name, cfg.MaxTokens, timeout)
		if err != nil {
			err = fmt.Errorf("%w (set $%s)", err, cfg.APIKeyEnv)
		}
	case "ollama":
		m, err = NewOllamaModel(cfg.BaseURL, cfg.Name, timeout)
	case "mock":
		m = NewMockModel()
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("chat model ready", zap.String("provider", cfg.Provider), zap.String("model", m.Name()))
	return m, nil
}
