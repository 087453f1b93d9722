package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. MENTIONWATCH_POLL_INTERVAL_MS.
const EnvPrefix = "MENTIONWATCH_"

// Config is the service configuration. It is validated once by Load and
// treated as immutable afterwards.
type Config struct {
	APIKey            string `yaml:"apiKey" koanf:"apiKey" validate:"required"`
	APISecret         string `yaml:"apiSecret" koanf:"apiSecret" validate:"required"`
	AccessToken       string `yaml:"accessToken,omitempty" koanf:"accessToken"`
	AccessTokenSecret string `yaml:"accessTokenSecret,omitempty" koanf:"accessTokenSecret"`
	BearerToken       string `yaml:"bearerToken,omitempty" koanf:"bearerToken"`

	PollIntervalMs     int    `yaml:"pollIntervalMs" koanf:"pollIntervalMs" validate:"gte=1"`
	ThreadHistoryLimit int    `yaml:"threadHistoryLimit" koanf:"threadHistoryLimit" validate:"gte=1"`
	SinceID            string `yaml:"sinceId,omitempty" koanf:"sinceId" validate:"omitempty,numeric"`
	IncludeOwnTweets   bool   `yaml:"includeOwnTweets" koanf:"includeOwnTweets"`
	LogLevel           string `yaml:"logLevel" koanf:"logLevel" validate:"oneof=trace debug info warn error silent"`
	LogFormat          string `yaml:"logFormat" koanf:"logFormat" validate:"oneof=json console"`

	API     APIConfig     `yaml:"api" koanf:"api"`
	Storage StorageConfig `yaml:"storage" koanf:"storage"`
	Metrics MetricsConfig `yaml:"metrics" koanf:"metrics"`
}

// APIConfig tunes the platform client.
type APIConfig struct {
	BaseURL       string  `yaml:"baseURL" koanf:"baseURL" validate:"required,url"`
	RPS           float64 `yaml:"rps" koanf:"rps" validate:"gt=0"`
	Burst         int     `yaml:"burst" koanf:"burst" validate:"gte=1"`
	MaxAttempts   int     `yaml:"maxAttempts" koanf:"maxAttempts" validate:"gte=1"`
	BaseBackoffMs int     `yaml:"baseBackoffMs" koanf:"baseBackoffMs" validate:"gte=1"`
}

// StorageConfig enables cursor persistence and the mention journal when DBPath is set.
type StorageConfig struct {
	DBPath string `yaml:"dbPath" koanf:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" koanf:"addr"`
}

// Default returns a configuration with every optional key set.
func Default() Config {
	return Config{
		PollIntervalMs:     60000,
		ThreadHistoryLimit: 50,
		LogLevel:           "info",
		LogFormat:          "json",
		API: APIConfig{
			BaseURL:       "https://api.twitter.com",
			RPS:           2,
			Burst:         10,
			MaxAttempts:   3,
			BaseBackoffMs: 500,
		},
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = d.PollIntervalMs
	}
	if c.ThreadHistoryLimit == 0 {
		c.ThreadHistoryLimit = d.ThreadHistoryLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.RPS == 0 {
		c.API.RPS = d.API.RPS
	}
	if c.API.Burst == 0 {
		c.API.Burst = d.API.Burst
	}
	if c.API.MaxAttempts == 0 {
		c.API.MaxAttempts = d.API.MaxAttempts
	}
	if c.API.BaseBackoffMs == 0 {
		c.API.BaseBackoffMs = d.API.BaseBackoffMs
	}
}

// ResolveEnv fills credentials from the X_* environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("X_CONSUMER_KEY")
	}
	if c.APISecret == "" {
		c.APISecret = os.Getenv("X_CONSUMER_SECRET")
	}
	if c.AccessToken == "" {
		c.AccessToken = os.Getenv("X_ACCESS_TOKEN")
	}
	if c.AccessTokenSecret == "" {
		c.AccessTokenSecret = os.Getenv("X_ACCESS_SECRET")
	}
	if c.BearerToken == "" {
		c.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config against its field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(parts, "; "))
		}
		return err
	}
	return nil
}

// PollInterval returns PollIntervalMs as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SeedSinceID returns the configured cursor seed, treating "0" as unset.
func (c Config) SeedSinceID() string {
	if c.SinceID == "0" {
		return ""
	}
	return c.SinceID
}

var envKeys = map[string]string{
	"API_KEY":              "apiKey",
	"API_SECRET":           "apiSecret",
	"ACCESS_TOKEN":         "accessToken",
	"ACCESS_TOKEN_SECRET":  "accessTokenSecret",
	"BEARER_TOKEN":         "bearerToken",
	"POLL_INTERVAL_MS":     "pollIntervalMs",
	"THREAD_HISTORY_LIMIT": "threadHistoryLimit",
	"SINCE_ID":             "sinceId",
	"INCLUDE_OWN_TWEETS":   "includeOwnTweets",
	"LOG_LEVEL":            "logLevel",
	"LOG_FORMAT":           "logFormat",
	"API_BASE_URL":         "api.baseURL",
	"API_RPS":              "api.rps",
	"API_BURST":            "api.burst",
	"API_MAX_ATTEMPTS":     "api.maxAttempts",
	"API_BASE_BACKOFF_MS":  "api.baseBackoffMs",
	"DB_PATH":              "storage.dbPath",
	"METRICS_ADDR":         "metrics.addr",
}

// Load reads the YAML file at path (skipped when path is empty), overlays
// MENTIONWATCH_* environment variables, fills defaults and validates.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKeys[strings.TrimPrefix(s, EnvPrefix)]
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ResolveEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
