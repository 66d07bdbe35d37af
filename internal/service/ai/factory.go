package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/other-side/backend/internal/config"
	"github.com/zhouzirui/other-side/backend/internal/secrets"
)

// NewArkFactory returns a factory that resolves the API key (directly from cfg
// or through provider) and builds the Ark chat model.
func NewArkFactory(cfg config.AIConfig, provider secrets.Provider) ModelFactory {
	return func(ctx context.Context) (model.ChatModel, error) {
		apiKey, err := resolveAPIKey(ctx, cfg, provider)
		if err != nil {
			return nil, err
		}
		return cfg.NewChatModel(ctx, apiKey)
	}
}

func resolveAPIKey(ctx context.Context, cfg config.AIConfig, provider secrets.Provider) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if cfg.APIKeyName == "" {
		// AK/SK only.
		return "", nil
	}
	if provider == nil {
		return "", fmt.Errorf("no secrets provider for %s", cfg.APIKeyName)
	}

	apiKey, err := provider.Fetch(ctx, cfg.APIKeyName)
	if err != nil {
		return "", fmt.Errorf("fetch api key: %w", err)
	}
	return apiKey, nil
}
