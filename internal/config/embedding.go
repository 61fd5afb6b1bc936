package config

import "time"

// EmbeddingConfig configures the vector embedding engine.
// Supports OpenAI (remote), Ollama (local server), and a deterministic
// in-process fallback backend.
type EmbeddingConfig struct {
	// Provider: "openai", "ollama", or "local"
	Provider string `yaml:"provider"`

	// Model name passed to the backend. Also seeds the deterministic
	// fallback, so changing the model changes fallback vectors too.
	Model string `yaml:"model"`

	// Dims is the embedding dimensionality. Every vector is truncated or
	// zero-padded to this length before normalization.
	Dims int `yaml:"dims"`

	// OpenAI configuration
	OpenAIEndpoint string `yaml:"openai_endpoint"` // Default: "https://api.openai.com"
	OpenAIAPIKey   string `yaml:"openai_api_key"`

	// Ollama configuration
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"

	// Timeout is the hard cap on one remote embedding call. On timeout the
	// deterministic fallback answers instead.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultEmbeddingConfig returns sensible defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:       "local",
		Model:          "text-embedding-3-small",
		Dims:           1536,
		OpenAIEndpoint: "https://api.openai.com",
		OllamaEndpoint: "http://localhost:11434",
		Timeout:        20 * time.Second,
	}
}
