package config

// ChatProviderType defines supported chat-completion providers.
type ChatProviderType string

const (
	// ChatProviderTypeOpenRouter is the OpenRouter OpenAI-compatible API
	ChatProviderTypeOpenRouter ChatProviderType = "openrouter"
	// ChatProviderTypePortkey is the Portkey gateway OpenAI-compatible API
	ChatProviderTypePortkey ChatProviderType = "portkey"
)

// IsValid checks if the chat provider type is valid
func (t ChatProviderType) IsValid() bool {
	return t == ChatProviderTypeOpenRouter || t == ChatProviderTypePortkey
}

// EmbeddingProviderType defines supported embedding providers.
type EmbeddingProviderType string

const (
	// EmbeddingProviderTypeGoogle is the Gemini embedding API
	EmbeddingProviderTypeGoogle EmbeddingProviderType = "google"
	// EmbeddingProviderTypeOpenAI is the OpenAI embeddings API
	EmbeddingProviderTypeOpenAI EmbeddingProviderType = "openai"
	// EmbeddingProviderTypeOpenRouter is OpenRouter's embeddings endpoint
	EmbeddingProviderTypeOpenRouter EmbeddingProviderType = "openrouter"
)

// IsValid checks if the embedding provider type is valid
func (t EmbeddingProviderType) IsValid() bool {
	switch t {
	case EmbeddingProviderTypeGoogle, EmbeddingProviderTypeOpenAI, EmbeddingProviderTypeOpenRouter:
		return true
	default:
		return false
	}
}

// ProviderKind distinguishes what a provider entry can be used for.
type ProviderKind string

const (
	// ProviderKindChat marks a chat-completion provider entry
	ProviderKindChat ProviderKind = "chat"
	// ProviderKindEmbedding marks an embedding provider entry
	ProviderKindEmbedding ProviderKind = "embedding"
)

// IsValid checks if the provider kind is valid
func (k ProviderKind) IsValid() bool {
	return k == ProviderKindChat || k == ProviderKindEmbedding
}
