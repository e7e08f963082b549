package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kroger    KrogerConfig
	Walmart   WalmartConfig
	Safeway   SafewayConfig
	Aldi      AldiConfig
	Estimator EstimatorConfig
	Refresh   RefreshConfig
	Units     UnitsConfig
	Resolver  ResolverConfig
	RateLimit RateLimitConfig
	Archive   ArchiveConfig
	Events    EventsConfig
	Metrics   MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the price cache backend
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite", "postgres" or "memory"
	DSN    string `mapstructure:"dsn"`
}

// KrogerConfig holds Kroger API credentials. Empty credentials disable the source.
type KrogerConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// WalmartConfig configures the Walmart scraper
type WalmartConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SafewayConfig configures the Safeway scraper
type SafewayConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	DefaultStoreID string        `mapstructure:"default_store_id"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// AldiConfig configures the ALDI scraper
type AldiConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EstimatorConfig configures the static price table source
type EstimatorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Banners limits the estimator to stores whose name contains one of them; empty means every store
	Banners []string `mapstructure:"banners"`
}

// RefreshConfig holds refresh pipeline configuration
type RefreshConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	LookupRadiusMiles int           `mapstructure:"lookup_radius_miles"`
	Interval          time.Duration `mapstructure:"interval"`
	OnStartup         bool          `mapstructure:"on_startup"`
}

// UnitsConfig holds the cross-family conversion calibration
type UnitsConfig struct {
	EachGrams       float64 `mapstructure:"each_grams"`
	EachMilliliters float64 `mapstructure:"each_ml"`
	Density         float64 `mapstructure:"density"`
}

// ResolverConfig holds price resolution configuration
type ResolverConfig struct {
	CandidateLimit int `mapstructure:"candidate_limit"`
	// QuoteCacheSize bounds memoized resolutions; 0 selects the unbounded TTL cache
	QuoteCacheSize int           `mapstructure:"quote_cache_size"`
	QuoteCacheTTL  time.Duration `mapstructure:"quote_cache_ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// ArchiveConfig holds the S3 snapshot archive configuration
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Prefix    string `mapstructure:"prefix"`
	// Static credentials; empty falls back to the AWS default credentials chain
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// EventsConfig holds the Kafka refresh event configuration
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cartcost/")

	// CARTCOST_REFRESH_FETCH_TIMEOUT maps onto refresh.fetch_timeout
	v.SetEnvPrefix("CARTCOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile exports variables from ./.env without overriding ones already set
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values.
// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "cartcost.db")

	// Source defaults
	v.SetDefault("kroger.client_id", "")
	v.SetDefault("kroger.client_secret", "")
	v.SetDefault("kroger.base_url", "https://api.kroger.com")
	v.SetDefault("kroger.token_url", "")
	v.SetDefault("kroger.timeout", "15s")
	v.SetDefault("walmart.enabled", true)
	v.SetDefault("walmart.base_url", "https://www.walmart.com")
	v.SetDefault("walmart.timeout", "10s")
	v.SetDefault("safeway.enabled", true)
	v.SetDefault("safeway.base_url", "https://www.safeway.com")
	v.SetDefault("safeway.default_store_id", "3132")
	v.SetDefault("safeway.timeout", "15s")
	v.SetDefault("aldi.enabled", true)
	v.SetDefault("aldi.base_url", "https://www.aldi.us")
	v.SetDefault("aldi.timeout", "15s")
	v.SetDefault("estimator.enabled", true)
	v.SetDefault("estimator.banners", []string{"safeway", "vons", "albertsons", "pavilions"})

	// Refresh defaults
	v.SetDefault("refresh.concurrency", 20)
	v.SetDefault("refresh.fetch_timeout", "15s")
	v.SetDefault("refresh.lookup_radius_miles", 10)
	v.SetDefault("refresh.interval", "24h")
	v.SetDefault("refresh.on_startup", false)

	// Unit calibration defaults
	v.SetDefault("units.each_grams", 300.0)
	v.SetDefault("units.each_ml", 473.0)
	v.SetDefault("units.density", 1.0)

	// Resolver defaults
	v.SetDefault("resolver.candidate_limit", 5)
	v.SetDefault("resolver.quote_cache_size", 10000)
	v.SetDefault("resolver.quote_cache_ttl", "1h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)

	// Archive defaults
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.path_style", false)
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")

	// Events defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "prices.refreshed")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Database.Driver {
	case "sqlite", "postgres":
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for driver %q (set CARTCOST_DATABASE_DSN)", config.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database driver must be 'sqlite', 'postgres' or 'memory', got: %s", config.Database.Driver)
	}

	if config.Refresh.Concurrency < 1 {
		return fmt.Errorf("refresh concurrency must be at least 1, got: %d", config.Refresh.Concurrency)
	}
	if config.Refresh.FetchTimeout <= 0 {
		return fmt.Errorf("refresh fetch timeout must be positive, got: %s", config.Refresh.FetchTimeout)
	}
	if config.Refresh.Interval < 0 {
		return fmt.Errorf("refresh interval must not be negative, got: %s", config.Refresh.Interval)
	}
	if config.Resolver.CandidateLimit < 1 {
		return fmt.Errorf("resolver candidate limit must be at least 1, got: %d", config.Resolver.CandidateLimit)
	}
	if config.Units.EachGrams <= 0 || config.Units.EachMilliliters <= 0 || config.Units.Density <= 0 {
		return fmt.Errorf("unit calibration values must be positive")
	}
	if config.Archive.Enabled && config.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when the archive is enabled")
	}
	if config.Events.Enabled && (len(config.Events.Brokers) == 0 || config.Events.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when events are enabled")
	}

	return nil
}

// KrogerEnabled reports whether Kroger credentials are configured
func (c *Config) KrogerEnabled() bool {
	return c.Kroger.ClientID != "" && c.Kroger.ClientSecret != ""
}
