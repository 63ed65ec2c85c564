package config

import (
	"fmt"
	"sync"
)

// ProviderConfig defines one external model provider entry. Chat entries
// serve the normalizer, the curator, the reviewer, and the image pipeline;
// embedding entries serve the embedder.
type ProviderConfig struct {
	// Kind separates chat-completion entries from embedding entries (required)
	Kind ProviderKind `yaml:"kind"`

	// Type selects the wire implementation (required).
	// Chat: openrouter | portkey. Embedding: google | openai | openrouter.
	Type string `yaml:"type"`

	// Model name (required)
	Model string `yaml:"model"`

	// Environment variable name holding the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Optional custom endpoint/base URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Portkey routes to an upstream provider selected per key
	VirtualKeyEnv string `yaml:"virtual_key_env,omitempty"`
}

// ChatType returns the entry's type as a chat provider type.
func (p *ProviderConfig) ChatType() ChatProviderType {
	return ChatProviderType(p.Type)
}

// EmbeddingType returns the entry's type as an embedding provider type.
func (p *ProviderConfig) EmbeddingType() EmbeddingProviderType {
	return EmbeddingProviderType(p.Type)
}

// ProviderRegistry stores provider configurations in memory with thread-safe access
type ProviderRegistry struct {
	providers map[string]*ProviderConfig
	mu        sync.RWMutex
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry(providers map[string]*ProviderConfig) *ProviderRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*ProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &ProviderRegistry{
		providers: copied,
	}
}

// Get retrieves a provider configuration by name (thread-safe)
func (r *ProviderRegistry) Get(name string) (*ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}

// GetChat retrieves a provider by name and requires it to be a chat entry.
func (r *ProviderRegistry) GetChat(name string) (*ProviderConfig, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if p.Kind != ProviderKindChat {
		return nil, fmt.Errorf("%w: %s is not a chat provider", ErrInvalidValue, name)
	}
	return p, nil
}

// GetEmbedding retrieves a provider by name and requires it to be an embedding entry.
func (r *ProviderRegistry) GetEmbedding(name string) (*ProviderConfig, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if p.Kind != ProviderKindEmbedding {
		return nil, fmt.Errorf("%w: %s is not an embedding provider", ErrInvalidValue, name)
	}
	return p, nil
}

// Has checks if a provider exists in the registry (thread-safe)
func (r *ProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[name]
	return exists
}

// Len returns the number of providers in the registry (thread-safe)
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
