// internal/gateway/config.go
package gateway

import (
	"time"

	"nuance-pipeline/internal/common/config"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	MaxTokens  int
}

func LoadConfig(cfg config.ProviderConfig) *Config {
	return &Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    config.GetDuration(cfg.Timeout),
		MaxRetries: cfg.MaxRetries,
		MaxTokens:  cfg.MaxTokens,
	}
}
