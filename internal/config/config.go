// Package config loads the engine configuration from YAML, falling back to
// sensible defaults when no file exists.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tmengine/internal/domain"
)

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MatchingConfig tunes the similarity scorer and match classification.
type MatchingConfig struct {
	Weights    domain.ScoreWeights `yaml:"weights"`
	Thresholds domain.Thresholds   `yaml:"thresholds"`
	// MachineQuality is the rating stored for unreviewed machine output.
	MachineQuality float64 `yaml:"machine_quality"`
}

// CacheConfig selects the exact-match cache backend.
type CacheConfig struct {
	Type    string       `yaml:"type"` // "memory" or "redis"
	TTLSecs int          `yaml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig contains connection details for a Redis-backed cache.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ProviderConfig configures the machine-translation fallback. The API key
// is read from the named environment variable, never stored in the file.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MaintenanceConfig schedules automatic eviction of stale entries.
type MaintenanceConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MinQuality    float64 `yaml:"min_quality"`
	MaxAgeDays    int     `yaml:"max_age_days"`
	IntervalHours int     `yaml:"interval_hours"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Database    DatabaseConfig    `yaml:"database"`
	Matching    MatchingConfig    `yaml:"matching"`
	Cache       CacheConfig       `yaml:"cache"`
	Provider    *ProviderConfig   `yaml:"provider,omitempty"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Load reads a config from path. A missing file returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./tmengine.yaml first, then the user config directory.
// If neither exists, defaults are written to the user path and returned.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "tmengine.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the engine could not run with.
func (c *AppConfig) Validate() error {
	if err := c.Matching.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Matching.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Matching.MachineQuality < 0 || c.Matching.MachineQuality > 1 {
		return &domain.ValidationError{Field: "machine_quality", Message: "must be within [0,1]"}
	}
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return &domain.ValidationError{Field: "cache.type", Message: "must be \"memory\" or \"redis\""}
	}
	if c.Cache.Type == "redis" && (c.Cache.Redis == nil || c.Cache.Redis.URL == "") {
		return &domain.ValidationError{Field: "cache.redis.url", Message: "required for the redis cache"}
	}
	if c.Maintenance.Enabled {
		if c.Maintenance.MinQuality < 0 || c.Maintenance.MinQuality > 1 {
			return &domain.ValidationError{Field: "maintenance.min_quality", Message: "must be within [0,1]"}
		}
		if c.Maintenance.MaxAgeDays <= 0 {
			return &domain.ValidationError{Field: "maintenance.max_age_days", Message: "must be positive"}
		}
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tmengine", "config.yaml"), nil
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tmengine.db"
	}
	return filepath.Join(home, ".local", "share", "tmengine", "tm.db")
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Matching: MatchingConfig{
			Weights:        domain.DefaultWeights(),
			Thresholds:     domain.DefaultThresholds(),
			MachineQuality: 0.8,
		},
		Cache: CacheConfig{Type: "memory"},
		Maintenance: MaintenanceConfig{
			MinQuality:    0.5,
			MaxAgeDays:    365,
			IntervalHours: 24,
		},
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath()
	}
	zero := domain.ScoreWeights{}
	if cfg.Matching.Weights == zero {
		cfg.Matching.Weights = domain.DefaultWeights()
	}
	if cfg.Matching.Thresholds.FuzzyMin == 0 && cfg.Matching.Thresholds.AutoApply == 0 {
		cfg.Matching.Thresholds = domain.DefaultThresholds()
	}
	if cfg.Matching.Thresholds.MaxCandidates == 0 {
		cfg.Matching.Thresholds.MaxCandidates = domain.DefaultThresholds().MaxCandidates
	}
	if cfg.Matching.Thresholds.TopN == 0 {
		cfg.Matching.Thresholds.TopN = domain.DefaultThresholds().TopN
	}
	if cfg.Matching.MachineQuality == 0 {
		cfg.Matching.MachineQuality = 0.8
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.Redis != nil && cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = "tmengine:"
	}
	if cfg.Provider != nil {
		if cfg.Provider.APIKeyEnv == "" {
			cfg.Provider.APIKeyEnv = "TMENGINE_API_KEY"
		}
		if cfg.Provider.TimeoutSecs == 0 {
			cfg.Provider.TimeoutSecs = 30
		}
	}
	if cfg.Maintenance.MinQuality == 0 {
		cfg.Maintenance.MinQuality = 0.5
	}
	if cfg.Maintenance.MaxAgeDays == 0 {
		cfg.Maintenance.MaxAgeDays = 365
	}
	if cfg.Maintenance.IntervalHours == 0 {
		cfg.Maintenance.IntervalHours = 24
	}
}
