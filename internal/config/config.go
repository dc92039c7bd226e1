package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig       `yaml:"server"`
	Database DatabaseConfig     `yaml:"database"`
	Batch    BatchConfig        `yaml:"batch"`
	Engine   EngineConfig       `yaml:"engine"`
	Matching types.EngineConfig `yaml:"matching"`
	Sync     SyncConfig         `yaml:"sync"`
	Log      LogConfig          `yaml:"log"`
}

// ServerConfig contains status HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains ledger database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig contains batch index and download source settings.
// When S3.Bucket is set, batches are fetched from object storage;
// otherwise BaseURL over plain HTTP.
type BatchConfig struct {
	BaseURL      string   `yaml:"base_url"`
	IndexPath    string   `yaml:"index_path"`
	DownloadDir  string   `yaml:"download_dir"`
	RecentHours  int      `yaml:"recent_hours"`
	MaxDownloads int      `yaml:"max_downloads"`
	Retries      int      `yaml:"retries"`
	S3           S3Config `yaml:"s3"`
}

// S3Config contains object-storage source settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	IndexKey  string `yaml:"index_key"`
	UseSSL    *bool  `yaml:"use_ssl"`
}

// EngineConfig contains vendor matching-engine bridge settings.
type EngineConfig struct {
	// Vendor forces a specific adapter ("nearby", "contactshield");
	// empty means probe at startup.
	Vendor           string `yaml:"vendor"`
	NearbyURL        string `yaml:"nearby_url"`
	ContactShieldURL string `yaml:"contactshield_url"`
}

// SyncConfig contains orchestrator settings.
type SyncConfig struct {
	Interval      Duration         `yaml:"interval"`
	Categories    []types.Category `yaml:"categories"`
	FullBatchDays int              `yaml:"full_batch_days"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("EXPOSURE_CONFIG_PATH", "config/exposure.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/exposure.db",
		},
		Batch: BatchConfig{
			IndexPath:    "/index.json",
			DownloadDir:  "data/batches",
			RecentHours:  24,
			MaxDownloads: 4,
			Retries:      3,
		},
		Engine: EngineConfig{
			NearbyURL:        "http://127.0.0.1:7540",
			ContactShieldURL: "http://127.0.0.1:7541",
		},
		Matching: types.EngineConfig{
			MinimumRiskScore:        1,
			AttenuationWeight:       50,
			DaysSinceExposureWeight: 50,
			DurationWeight:          50,
			TransmissionRiskWeight:  50,
			AttenuationThresholds:   []int{50, 70},
		},
		Sync: SyncConfig{
			Interval:      Duration(1 * time.Hour),
			Categories:    []types.Category{types.CategoryYellow, types.CategoryRed},
			FullBatchDays: 7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("EXPOSURE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EXPOSURE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("EXPOSURE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("EXPOSURE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("EXPOSURE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Batch source
	if v := os.Getenv("EXPOSURE_BATCH_BASE_URL"); v != "" {
		cfg.Batch.BaseURL = v
	}
	if v := os.Getenv("EXPOSURE_BATCH_INDEX_PATH"); v != "" {
		cfg.Batch.IndexPath = v
	}
	if v := os.Getenv("EXPOSURE_DOWNLOAD_DIR"); v != "" {
		cfg.Batch.DownloadDir = v
	}
	if v := os.Getenv("EXPOSURE_RECENT_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.RecentHours = n
		}
	}
	if v := os.Getenv("EXPOSURE_S3_ENDPOINT"); v != "" {
		cfg.Batch.S3.Endpoint = v
	}
	if v := os.Getenv("EXPOSURE_S3_BUCKET"); v != "" {
		cfg.Batch.S3.Bucket = v
	}
	if v := os.Getenv("EXPOSURE_S3_REGION"); v != "" {
		cfg.Batch.S3.Region = v
	}
	if v := os.Getenv("EXPOSURE_S3_ACCESS_KEY"); v != "" {
		cfg.Batch.S3.AccessKey = v
	}
	if v := os.Getenv("EXPOSURE_S3_SECRET_KEY"); v != "" {
		cfg.Batch.S3.SecretKey = v
	}

	// Engine bridges
	if v := os.Getenv("EXPOSURE_ENGINE_VENDOR"); v != "" {
		cfg.Engine.Vendor = v
	}
	if v := os.Getenv("EXPOSURE_NEARBY_URL"); v != "" {
		cfg.Engine.NearbyURL = v
	}
	if v := os.Getenv("EXPOSURE_CONTACTSHIELD_URL"); v != "" {
		cfg.Engine.ContactShieldURL = v
	}

	// Sync
	if v := os.Getenv("EXPOSURE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("EXPOSURE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EXPOSURE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
func (c *Config) validate() error {
	if c.Batch.BaseURL == "" && c.Batch.S3.Bucket == "" {
		return errors.New("batch.base_url or batch.s3.bucket is required")
	}
	if c.Batch.RecentHours <= 0 {
		return errors.New("batch.recent_hours must be positive")
	}
	for _, cat := range c.Sync.Categories {
		if _, err := types.ParseCategory(string(cat)); err != nil {
			return fmt.Errorf("sync.categories: %w", err)
		}
	}
	switch c.Engine.Vendor {
	case "", "nearby", "contactshield":
	default:
		return fmt.Errorf("engine.vendor must be nearby or contactshield, got %q", c.Engine.Vendor)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
