package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Provider kinds understood by the model registry.
const (
	KindGroq   = "groq"
	KindGithub = "github"
	KindOpenAI = "openai"
	KindGemini = "gemini"
)

// ModelEntry describes one provider in the preference order.
type ModelEntry struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"`
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	Disabled bool   `mapstructure:"disabled"`
}

// ModelsConfig is the provider preference order plus batch rotation.
type ModelsConfig struct {
	Providers    []ModelEntry `mapstructure:"providers"`
	BatchModels  []string     `mapstructure:"batch_models"`
	BatchRetries int          `mapstructure:"batch_retries"`
	BatchBackoff string       `mapstructure:"batch_backoff"`
}

// DefaultModels is used when no models file is configured.
func DefaultModels() ModelsConfig {
	return ModelsConfig{
		Providers: []ModelEntry{
			{Name: "primary", Kind: KindGroq, Model: "llama-3.3-70b-versatile"},
			{Name: "groq_fallback_1", Kind: KindGroq, Model: "llama3-70b-8192"},
			{Name: "groq_fallback_2", Kind: KindGroq, Model: "gemma-7b-it"},
			{Name: "github_fallback", Kind: KindGithub, Model: "openai/gpt-4o", Endpoint: "https://models.github.ai/inference/chat/completions"},
			{Name: "gemini_fallback", Kind: KindGemini, Model: "gemini-1.5-flash"},
		},
		BatchModels:  []string{"primary", "groq_fallback_1"},
		BatchRetries: 3,
		BatchBackoff: "2s",
	}
}

// LoadModels reads the provider registry file. An empty path yields the defaults.
func LoadModels(path string) (ModelsConfig, error) {
	defaults := DefaultModels()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MODELS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("batch_retries", defaults.BatchRetries)
	v.SetDefault("batch_backoff", defaults.BatchBackoff)

	if strings.TrimSpace(path) == "" {
		return defaults, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Printf("models file %s not found, using defaults", path)
			return defaults, nil
		}
		return ModelsConfig{}, fmt.Errorf("read models file: %w", err)
	}

	var cfg ModelsConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ModelsConfig{}, fmt.Errorf("decode models file: %w", err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = defaults.Providers
	}
	if len(cfg.BatchModels) == 0 {
		cfg.BatchModels = defaults.BatchModels
	}
	if err := cfg.Validate(); err != nil {
		return ModelsConfig{}, err
	}
	return cfg, nil
}

// Validate checks every entry names a known kind and a model id.
func (m ModelsConfig) Validate() error {
	seen := make(map[string]struct{}, len(m.Providers))
	for i, p := range m.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Kind {
		case KindGroq, KindGithub, KindOpenAI, KindGemini:
		default:
			return fmt.Errorf("providers[%d]: unknown kind %q", i, p.Kind)
		}
		if strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("providers[%d]: model is required", i)
		}
	}
	if m.BatchRetries < 0 {
		return fmt.Errorf("batch_retries must be >= 0")
	}
	return nil
}
