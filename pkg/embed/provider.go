// Package embed produces headline embeddings for clustering.
package embed

import (
	"context"
	"fmt"
	"os"

	"github.com/tideline/tideline/pkg/config"
)

// Provider produces one embedding per call.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewProvider builds the configured embedding provider.
func NewProvider(ctx context.Context, provider *config.ProviderConfig, cfg *config.EmbedConfig) (Provider, error) {
	apiKey := os.Getenv(provider.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("embedding provider %s: environment variable %s is not set", provider.Type, provider.APIKeyEnv)
	}

	switch provider.EmbeddingType() {
	case config.EmbeddingProviderTypeGoogle:
		return newGoogleProvider(ctx, provider, cfg, apiKey)
	case config.EmbeddingProviderTypeOpenAI, config.EmbeddingProviderTypeOpenRouter:
		return newOpenAIProvider(provider, cfg, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider type: %s", provider.Type)
	}
}
