package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/tideline/tideline/pkg/config"
)

// googleProvider embeds via the Gemini embedding API.
type googleProvider struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int32
}

func newGoogleProvider(ctx context.Context, provider *config.ProviderConfig, cfg *config.EmbedConfig, apiKey string) (Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &googleProvider{
		client:     client,
		model:      provider.Model,
		taskType:   cfg.TaskType,
		dimensions: int32(cfg.Dimensions),
	}, nil
}

func (p *googleProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.model,
		genai.Text(text),
		&genai.EmbedContentConfig{
			TaskType:             p.taskType,
			OutputDimensionality: genai.Ptr(p.dimensions),
		})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed returned no values")
	}
	return resp.Embeddings[0].Values, nil
}
