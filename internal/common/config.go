package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Documents   DocumentsConfig  `toml:"documents"`
	Embeddings  EmbeddingsConfig `toml:"embeddings"`
	LLM         LLMConfig        `toml:"llm"`
	Retrieval   RetrievalConfig  `toml:"retrieval"`
	Session     SessionConfig    `toml:"session"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type DocumentsConfig struct {
	ChunkSize     int `toml:"chunk_size"`      // Window size in bytes
	ChunkOverlap  int `toml:"chunk_overlap"`   // Overlap carried between windows
	MaxUploadSize int `toml:"max_upload_size"` // Reject uploads larger than this
}

type EmbeddingsConfig struct {
	Dimension        int     `toml:"dimension"`           // Local embedding length
	Model            string  `toml:"model"`               // Model sent to the embedding endpoint
	MaxRemoteTextLen int     `toml:"max_remote_text_len"` // Skip the remote call above this
	CacheCapacity    int     `toml:"cache_capacity"`      // Trim threshold
	CacheRetain      int     `toml:"cache_retain"`        // Entries kept after a trim
	RemoteRate       float64 `toml:"remote_rate"`         // Remote embedding calls per second
	RemoteBurst      int     `toml:"remote_burst"`
	RequestTimeout   string  `toml:"request_timeout"` // e.g. "5s"
}

type LLMConfig struct {
	BaseURL        string `toml:"base_url"`      // Ollama-compatible endpoint root
	DefaultModel   string `toml:"default_model"` // Used when the client names none
	RequestTimeout string `toml:"request_timeout"`
}

type RetrievalConfig struct {
	TopK     int     `toml:"top_k"`     // Chunks fetched per query
	MinScore float64 `toml:"min_score"` // Similarity threshold
}

type SessionConfig struct {
	SweepInterval string `toml:"sweep_interval"` // How often the sweep runs
	IdleTimeout   string `toml:"idle_timeout"`   // Disconnect idle connections after this
	StuckTimeout  string `toml:"stuck_timeout"`  // Force-complete generations running longer
	StopGrace     string `toml:"stop_grace"`     // Wait for a cancelled generation to acknowledge
}

type MaintenanceConfig struct {
	Schedule string `toml:"schedule"` // Cron schedule for cache flush + integrity check
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the built-in defaults, matched by deployments/local/nomad.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3001,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/nomad",
			},
		},
		Documents: DocumentsConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			MaxUploadSize: 20 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Dimension:        384,
			Model:            "all-minilm",
			MaxRemoteTextLen: 10000,
			CacheCapacity:    10000,
			CacheRetain:      5000,
			RemoteRate:       10,
			RemoteBurst:      5,
			RequestTimeout:   "5s",
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434",
			DefaultModel:   "gemma3:4b",
			RequestTimeout: "60s",
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: 0.4,
		},
		Session: SessionConfig{
			SweepInterval: "30s",
			IdleTimeout:   "10m",
			StuckTimeout:  "5m",
			StopGrace:     "200ms",
		},
		Maintenance: MaintenanceConfig{
			Schedule: "*/5 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NOMAD_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("NOMAD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NOMAD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("NOMAD_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if url := os.Getenv("NOMAD_LLM_BASE_URL"); url != "" {
		config.LLM.BaseURL = url
	}
	if model := os.Getenv("NOMAD_LLM_DEFAULT_MODEL"); model != "" {
		config.LLM.DefaultModel = model
	}
	if model := os.Getenv("NOMAD_EMBEDDINGS_MODEL"); model != "" {
		config.Embeddings.Model = model
	}
	if level := os.Getenv("NOMAD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Duration parses a duration field, falling back when unset or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
