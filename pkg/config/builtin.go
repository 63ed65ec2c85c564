package config

import "sync"

// BuiltinConfig holds all built-in configuration data: default provider
// entries users can reference without defining them.
type BuiltinConfig struct {
	Providers map[string]ProviderConfig
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Providers: initBuiltinProviders(),
	}
}

func initBuiltinProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openrouter": {
			Kind:      ProviderKindChat,
			Type:      string(ChatProviderTypeOpenRouter),
			Model:     "openai/gpt-4o-mini",
			APIKeyEnv: "OPENROUTER_API_KEY",
		},
		"portkey": {
			Kind:          ProviderKindChat,
			Type:          string(ChatProviderTypePortkey),
			Model:         "gpt-4o-mini",
			APIKeyEnv:     "PORTKEY_API_KEY",
			VirtualKeyEnv: "PORTKEY_VIRTUAL_KEY",
		},
		"google-embedding": {
			Kind:      ProviderKindEmbedding,
			Type:      string(EmbeddingProviderTypeGoogle),
			Model:     "gemini-embedding-001",
			APIKeyEnv: "GOOGLE_API_KEY",
		},
		"openai-embedding": {
			Kind:      ProviderKindEmbedding,
			Type:      string(EmbeddingProviderTypeOpenAI),
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}
