package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full memory-engine configuration, loaded from
// ~/.config/mnemo/config.toml with defaults for everything.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Recall    RecallConfig    `toml:"recall"`
	Index     IndexConfig     `toml:"index"`
	Sync      SyncConfig      `toml:"sync"`
	Privacy   PrivacyConfig   `toml:"privacy"`
}

type StorageConfig struct {
	Path             string `toml:"path"`
	MaxSizeMB        int64  `toml:"max_size_mb"`
	ArchiveAfterDays int    `toml:"archive_after_days"` // 0 disables
	DeleteAfterDays  int    `toml:"delete_after_days"`  // 0 disables
}

type EmbeddingConfig struct {
	Provider       string `toml:"provider"` // openai | ollama | mock | "" (disabled)
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	BatchSize      int    `toml:"batch_size"`
}

type RecallConfig struct {
	VectorWeight    float64 `toml:"vector_weight"`
	KeywordWeight   float64 `toml:"keyword_weight"`
	MinScore        float64 `toml:"min_score"`
	MaxResults      int     `toml:"max_results"`
	CandidateK      int     `toml:"candidate_k"`
	DecayRate       float64 `toml:"decay_rate"`
	ContextMessages int     `toml:"context_messages"`
}

type IndexConfig struct {
	MessageThreshold    int `toml:"message_threshold"`
	IdleIntervalMinutes int `toml:"idle_interval_minutes"`
	MaxKeywords         int `toml:"max_keywords"`
}

type SyncConfig struct {
	Mode           string `toml:"mode"` // disabled | local | remote | saas
	Endpoint       string `toml:"endpoint"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

type PrivacyConfig struct {
	ExcludeKeywords []string `toml:"exclude_keywords"`
	ExcludePaths    []string `toml:"exclude_paths"`
	Encrypt         bool     `toml:"encrypt"`
	Passphrase      string   `toml:"passphrase"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:      filepath.Join(configDir(), "memory.db"),
			MaxSizeMB: 2048,
		},
		Embedding: EmbeddingConfig{
			Provider:       "mock",
			Model:          "text-embedding-3-small",
			Dimensions:     384,
			TimeoutSeconds: 30,
			BatchSize:      32,
		},
		Recall: RecallConfig{
			VectorWeight:    0.6,
			KeywordWeight:   0.4,
			MinScore:        0.75,
			MaxResults:      5,
			CandidateK:      20,
			DecayRate:       0.001,
			ContextMessages: 3,
		},
		Index: IndexConfig{
			MessageThreshold:    5,
			IdleIntervalMinutes: 10,
			MaxKeywords:         10,
		},
		Sync: SyncConfig{
			Mode:           "disabled",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
	}
}

// Load reads config from ~/.config/mnemo/config.toml, falling back to
// defaults when the file is absent. Secrets may come from the environment
// (MNEMO_EMBEDDING_API_KEY, MNEMO_SYNC_TOKEN, MNEMO_PASSPHRASE).
func Load() (*Config, error) {
	return LoadFile(filepath.Join(configDir(), "config.toml"))
}

// LoadFile reads config from an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if key := os.Getenv("MNEMO_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if token := os.Getenv("MNEMO_SYNC_TOKEN"); token != "" {
		cfg.Sync.Token = token
	}
	if pass := os.Getenv("MNEMO_PASSPHRASE"); pass != "" {
		cfg.Privacy.Passphrase = pass
	}

	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	if cfg.Sync.Mode == "local" {
		cfg.Sync.Endpoint = ExpandPath(cfg.Sync.Endpoint)
	}

	return cfg, cfg.Validate()
}

// Save writes the config back to its default location.
func (c *Config) Save() error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "config.toml"))
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return toml.NewEncoder(f).Encode(c)
}

// Validate rejects option combinations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Sync.Mode {
	case "disabled", "local", "remote", "saas":
	default:
		return fmt.Errorf("invalid sync mode %q", c.Sync.Mode)
	}
	if c.Sync.Mode != "disabled" && c.Sync.Endpoint == "" {
		return fmt.Errorf("sync mode %q requires an endpoint", c.Sync.Mode)
	}
	if c.Recall.VectorWeight < 0 || c.Recall.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.Privacy.Encrypt && c.Privacy.Passphrase == "" {
		return fmt.Errorf("privacy.encrypt requires a passphrase")
	}
	return nil
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "mnemo")
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
