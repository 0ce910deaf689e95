// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first when present, then
// KREDIPLUS_* environment variables override it. The OpenAI API key is the
// only required value.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Chunking  ChunkingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port      int
	AuthToken string
}

type OpenAIConfig struct {
	APIKey     string
	EmbedModel string
	ChatModel  string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK      int
	Threshold float64
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		OpenAI: OpenAIConfig{
			EmbedModel: "text-embedding-3-small",
			ChatModel:  "gpt-4o-mini",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:      5,
			Threshold: 0.0,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return home + "/.krediplus"
}

// Load reads configuration from a .env file (if present) and KREDIPLUS_*
// environment variables. Environment variables take precedence.
func Load() (Config, error) {
	// Missing .env is fine; the environment alone may carry everything.
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set it via KREDIPLUS_OPENAI_API_KEY or a .env file")
	}
	if cfg.Chunking.Overlap >= cfg.Chunking.Size {
		return Config{}, fmt.Errorf("invalid chunking config: overlap %d must be smaller than size %d", cfg.Chunking.Overlap, cfg.Chunking.Size)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setInt := func(env string, dst *int) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if i, err := strconv.Atoi(raw); err == nil {
			*dst = i
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", env, raw, err)
		}
	}
	setFloat := func(env string, dst *float64) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = f
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", env, raw, err)
		}
	}

	setInt("KREDIPLUS_SERVER_PORT", &cfg.Server.Port)
	setString("KREDIPLUS_AUTH_TOKEN", &cfg.Server.AuthToken)
	setString("KREDIPLUS_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	setString("KREDIPLUS_OPENAI_EMBED_MODEL", &cfg.OpenAI.EmbedModel)
	setString("KREDIPLUS_OPENAI_CHAT_MODEL", &cfg.OpenAI.ChatModel)
	setString("KREDIPLUS_DATA_DIR", &cfg.Storage.DataDir)
	setInt("KREDIPLUS_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	setFloat("KREDIPLUS_RETRIEVAL_THRESHOLD", &cfg.Retrieval.Threshold)
	setInt("KREDIPLUS_CHUNK_SIZE", &cfg.Chunking.Size)
	setInt("KREDIPLUS_CHUNK_OVERLAP", &cfg.Chunking.Overlap)
	setString("KREDIPLUS_LOG_LEVEL", &cfg.Log.Level)

	// OPENAI_API_KEY is the conventional name; accept it when the
	// prefixed variable is not set.
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}
