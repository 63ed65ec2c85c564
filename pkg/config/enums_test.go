package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatProviderTypeIsValid(t *testing.T) {
	assert.True(t, ChatProviderTypeOpenRouter.IsValid())
	assert.True(t, ChatProviderTypePortkey.IsValid())
	assert.False(t, ChatProviderType("anthropic").IsValid())
	assert.False(t, ChatProviderType("").IsValid())
}

func TestEmbeddingProviderTypeIsValid(t *testing.T) {
	assert.True(t, EmbeddingProviderTypeGoogle.IsValid())
	assert.True(t, EmbeddingProviderTypeOpenAI.IsValid())
	assert.True(t, EmbeddingProviderTypeOpenRouter.IsValid())
	assert.False(t, EmbeddingProviderType("cohere").IsValid())
}

func TestProviderKindIsValid(t *testing.T) {
	assert.True(t, ProviderKindChat.IsValid())
	assert.True(t, ProviderKindEmbedding.IsValid())
	assert.False(t, ProviderKind("vision").IsValid())
}
