// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TESSERA_* prefix, plus DATABASE_URL)
//  2. Config file (~/.tessera/config.yaml)
//  3. Default values
//
// Sensitive data (API credentials, database passwords) is read from the
// environment and never written back to the config file or logs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrMissingAPIKey indicates no credential is available for the
	// configured provider.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the generation model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidMaxTurns indicates the tool-loop ceiling is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidSimilarity indicates the relevance floor is out of [0, 1].
	ErrInvalidSimilarity = errors.New("invalid similarity floor")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider"`       // "googleai" (default), "openai", "ollama"
	ModelName     string `mapstructure:"model_name"`     // e.g. "gemini-2.5-flash", "gpt-4o"
	EmbedderModel string `mapstructure:"embedder_model"` // e.g. "gemini-embedding-001"
	OllamaHost    string `mapstructure:"ollama_host"`

	// Tool loop and retrieval tuning
	MaxTurns      int     `mapstructure:"max_turns"`      // tool-loop step ceiling
	TopK          int     `mapstructure:"top_k"`          // default retrieval result cap
	MinSimilarity float64 `mapstructure:"min_similarity"` // default relevance floor

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`

	// Tracing (optional; empty host disables the exporter)
	OTLPAgentHost string `mapstructure:"otlp_agent_host"`
	ServiceName   string `mapstructure:"service_name"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".tessera"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("TESSERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file is fine: env + defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("max_turns", 5)
	v.SetDefault("top_k", 4)
	v.SetDefault("min_similarity", 0.5)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "tessera")
	v.SetDefault("postgres_dbname", "tessera")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("listen_addr", "127.0.0.1:3500")
	v.SetDefault("service_name", "tessera")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogleAI, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return ErrInvalidModelName
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return ErrInvalidEmbedderModel
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.MaxTurns < 1 || c.MaxTurns > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidMaxTurns, c.MaxTurns)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSimilarity, c.MinSimilarity)
	}
	return nil
}

// APICredential returns the provider credential from the environment.
// Returns ErrMissingAPIKey if the configured provider requires one and
// none is set. Ollama is local and needs no credential.
func (c *Config) APICredential() (string, error) {
	switch c.Provider {
	case ProviderOpenAI:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	case ProviderOllama:
		return "", nil
	default:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key, nil
		}
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
}
