// Package config loads cadseq settings from a TOML file and the
// environment. Environment variables win over the file, the file wins
// over Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/cadseq/pkg/client"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultUserAgent identifies cadseq when no user agent is configured.
const DefaultUserAgent = "cadseq/0.1.0"

// Duration is a time.Duration written as "30s" or "1m30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete cadseq configuration.
type Config struct {
	API     API     `toml:"api"`
	Redis   Redis   `toml:"redis"`
	Harvest Harvest `toml:"harvest"`
	Convert Convert `toml:"convert"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
	Store   Store   `toml:"store"`
	S3      S3      `toml:"s3"`
}

// API configures the document-service transport.
type API struct {
	URL        string   `toml:"url"`
	AccessKey  string   `toml:"access_key"`
	SecretKey  string   `toml:"secret_key"`
	UserAgent  string   `toml:"user_agent"`
	RateLimit  float64  `toml:"rate_limit"`
	Burst      int      `toml:"burst"`
	MaxRetries int      `toml:"max_retries"`
	Timeout    Duration `toml:"timeout"`
	CacheTTL   Duration `toml:"cache_ttl"`
}

// Redis is optional; an empty URL disables caching and shared back-off.
type Redis struct {
	URL string `toml:"url"`
}

// Harvest configures discovery and the batch pipeline.
type Harvest struct {
	Filter  string   `toml:"filter"`
	Queries []string `toml:"queries"`
	// Limit caps documents per query; negative means unlimited.
	Limit      int    `toml:"limit"`
	Workers    int    `toml:"workers"`
	OutputRoot string `toml:"output_root"`
}

// Convert configures the conversion dispatcher.
type Convert struct {
	// Command is the geometry kernel followed by its fixed arguments.
	Command   []string `toml:"command"`
	Extension string   `toml:"extension"`
	Mode      string   `toml:"mode"`
	Workers   int      `toml:"workers"`
}

type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

// Store configures the run ledger. An empty path disables it.
type Store struct {
	Path string `toml:"path"`
}

// S3 configures artifact publishing.
type S3 struct {
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PathStyle bool   `toml:"path_style"`
}

// Default returns a safe default configuration.
func Default() Config {
	transport := client.DefaultConfig(nil, DefaultUserAgent)
	return Config{
		API: API{
			URL:        transport.BaseURL,
			UserAgent:  transport.UserAgent,
			RateLimit:  transport.RateLimit,
			Burst:      transport.Burst,
			MaxRetries: transport.MaxRetries,
			Timeout:    Duration{transport.Timeout},
			CacheTTL:   Duration{transport.CacheTTL},
		},
		Harvest: Harvest{
			Filter:     "public",
			Limit:      100,
			Workers:    runtime.NumCPU(),
			OutputRoot: "data",
		},
		Convert: Convert{
			Extension: "step",
			Mode:      "continue",
			Workers:   runtime.NumCPU(),
		},
		Log: Log{
			Level: string(logging.LevelInfo),
		},
		Metrics: Metrics{
			Addr: ":9090",
		},
		Store: Store{
			Path: "cadseq.db",
		},
		S3: S3{
			Region:    "us-east-1",
			PathStyle: true,
		},
	}
}

// Load reads the TOML file at path on top of Default and applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from CADSEQ_* variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setBool := func(key string, dst *bool) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	setString("CADSEQ_API_URL", &c.API.URL)
	setString("CADSEQ_ACCESS_KEY", &c.API.AccessKey)
	setString("CADSEQ_SECRET_KEY", &c.API.SecretKey)
	setString("CADSEQ_USER_AGENT", &c.API.UserAgent)
	setString("CADSEQ_REDIS_URL", &c.Redis.URL)
	setString("CADSEQ_FILTER", &c.Harvest.Filter)
	setString("CADSEQ_OUTPUT_ROOT", &c.Harvest.OutputRoot)
	setString("CADSEQ_LOG_LEVEL", &c.Log.Level)
	setString("CADSEQ_METRICS_ADDR", &c.Metrics.Addr)
	setString("CADSEQ_STORE_PATH", &c.Store.Path)
	setString("CADSEQ_S3_BUCKET", &c.S3.Bucket)
	setString("CADSEQ_S3_PREFIX", &c.S3.Prefix)
	setString("CADSEQ_S3_REGION", &c.S3.Region)
	setString("CADSEQ_S3_ENDPOINT", &c.S3.Endpoint)
	setString("CADSEQ_S3_ACCESS_KEY", &c.S3.AccessKey)
	setString("CADSEQ_S3_SECRET_KEY", &c.S3.SecretKey)

	if v := getenv("CADSEQ_KERNEL"); v != "" {
		c.Convert.Command = strings.Fields(v)
	}

	var errs []error
	errs = append(errs,
		setInt("CADSEQ_WORKERS", &c.Harvest.Workers),
		setInt("CADSEQ_LIMIT", &c.Harvest.Limit),
		setBool("CADSEQ_LOG_PRETTY", &c.Log.Pretty),
	)
	if v := getenv("CADSEQ_RATE_LIMIT"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CADSEQ_RATE_LIMIT: %w", err))
		} else {
			c.API.RateLimit = rate
		}
	}
	return errors.Join(errs...)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.API.URL == "" {
		errs = append(errs, errors.New("api.url is required"))
	}
	if (c.API.AccessKey == "") != (c.API.SecretKey == "") {
		errs = append(errs, errors.New("api.access_key and api.secret_key must be set together"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit must be >= 0 (got %g)", c.API.RateLimit))
	}
	if c.Harvest.Workers < 1 {
		errs = append(errs, fmt.Errorf("harvest.workers must be >= 1 (got %d)", c.Harvest.Workers))
	}
	if c.Harvest.OutputRoot == "" {
		errs = append(errs, errors.New("harvest.output_root is required"))
	}
	if c.Convert.Workers < 1 {
		errs = append(errs, fmt.Errorf("convert.workers must be >= 1 (got %d)", c.Convert.Workers))
	}
	switch strings.ToLower(c.Convert.Mode) {
	case "new", "replace", "continue":
	default:
		errs = append(errs, fmt.Errorf("convert.mode %q is not one of new, replace, continue", c.Convert.Mode))
	}
	return errors.Join(errs...)
}

// ClientConfig builds the transport configuration. rdb may be nil.
func (c Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(rdb, c.API.UserAgent)
	cfg.BaseURL = c.API.URL
	cfg.AccessKey = c.API.AccessKey
	cfg.SecretKey = c.API.SecretKey
	cfg.RateLimit = c.API.RateLimit
	cfg.Burst = c.API.Burst
	cfg.MaxRetries = c.API.MaxRetries
	if c.API.Timeout.Duration > 0 {
		cfg.Timeout = c.API.Timeout.Duration
	}
	if c.API.CacheTTL.Duration > 0 {
		cfg.CacheTTL = c.API.CacheTTL.Duration
	}
	return cfg
}

// RedisOptions parses the redis URL. A bare "host:port" is accepted the
// way REDIS_URL was historically set. Returns nil when Redis is disabled.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, nil
	}
	if !strings.Contains(c.Redis.URL, "://") {
		return &redis.Options{Addr: c.Redis.URL}, nil
	}
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// LoggingConfig builds the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.Log.Level))
	cfg.Pretty = c.Log.Pretty
	return cfg
}
