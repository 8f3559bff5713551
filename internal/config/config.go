package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Tokens   TokensConfig   `toml:"tokens"`
	Cache    CacheConfig    `toml:"cache"`
}

type LLMConfig struct {
	Model          string  `toml:"model"`
	BaseURL        string  `toml:"base_url"`
	Temperature    float64 `toml:"temperature"`
	TopK           int     `toml:"top_k"`
	TopP           float64 `toml:"top_p"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

type SnapshotConfig struct {
	MaxDepth    int   `toml:"max_depth"`
	MaxFiles    int   `toml:"max_files"`
	MaxFileSize int64 `toml:"max_file_size"`
}

type TokensConfig struct {
	// Estimator selects the token counter backend: "bpe" or "heuristic".
	Estimator  string `toml:"estimator"`
	Buffer     int    `toml:"buffer"`
	MaxContext int    `toml:"max_context"`
	MinContext int    `toml:"min_context"`
}

type CacheConfig struct {
	Redis RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	TTLHours int    `toml:"ttl_hours"`
}

// Load reads ocode.toml from the current directory, falling back to
// defaults when the file is missing. OLLAMA_HOST overrides the base URL.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if _, err := toml.DecodeFile("ocode.toml", cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.LLM.BaseURL = host
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:          "qwen2.5-coder-128k:latest",
			BaseURL:        "http://localhost:11434",
			Temperature:    0.2,
			TopK:           40,
			TopP:           0.9,
			TimeoutSeconds: 0,
		},
		Snapshot: SnapshotConfig{
			MaxDepth:    3,
			MaxFiles:    50,
			MaxFileSize: 1000000,
		},
		Tokens: TokensConfig{
			Estimator:  "bpe",
			Buffer:     1000,
			MaxContext: 128000,
			MinContext: 4096,
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				Enabled:  false,
				Addr:     "localhost:6379",
				TTLHours: 24,
			},
		},
	}
}
