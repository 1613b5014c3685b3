package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the origin-report service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Geo        GeoConfig
	Tracking   TrackingConfig
	Report     ReportConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	// TablePrefix matches the store's table prefix (the WordPress wp_ convention).
	TablePrefix string
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the touch-event log connection.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled    bool
	TrackRPS   float64
	TrackBurst int
	AdminRPS   float64
	AdminBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP enrichment of touch events.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

// TrackingConfig configures the first-touch recorder.
type TrackingConfig struct {
	// OriginCookie is the cookie carrying the first-touch origin label.
	OriginCookie string
	// VisitorCookie is the cookie carrying the stable visitor ID.
	VisitorCookie string
	// CookieTTL bounds the first-touch window.
	CookieTTL time.Duration
	// SiteHost is the storefront hostname, used to tell self-referrals apart
	// from external referrers.
	SiteHost string
}

// ReportConfig holds reporting calibrations.
type ReportConfig struct {
	// UnitPrice is the fixed per-order product price used by ROAS math.
	UnitPrice float64
	// FacebookAdjustment is added to a nonzero FB-ads bucket once per
	// aggregation run. Business calibration carried over from the legacy
	// report; kept overridable.
	FacebookAdjustment int
	// Timezone is the store's reporting timezone.
	Timezone string
	// CacheTTL bounds the Redis report-result cache. Zero disables caching.
	CacheTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ORIGIN_REPORT_HTTP_ADDR", ":8080"),
			Env:             getEnv("ORIGIN_REPORT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ORIGIN_REPORT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("ORIGIN_REPORT_DB_HOST", "localhost"),
			Port:        getIntEnv("ORIGIN_REPORT_DB_PORT", 5432),
			User:        getEnv("ORIGIN_REPORT_DB_USER", "originreport"),
			Password:    getEnv("ORIGIN_REPORT_DB_PASSWORD", "originreport_secret"),
			DBName:      getEnv("ORIGIN_REPORT_DB_NAME", "originreport"),
			SSLMode:     getEnv("ORIGIN_REPORT_DB_SSLMODE", "disable"),
			MaxConns:    getIntEnv("ORIGIN_REPORT_DB_MAX_CONNS", 25),
			MinConns:    getIntEnv("ORIGIN_REPORT_DB_MIN_CONNS", 5),
			TablePrefix: getEnv("ORIGIN_REPORT_DB_TABLE_PREFIX", "wp_"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ORIGIN_REPORT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ORIGIN_REPORT_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ORIGIN_REPORT_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("ORIGIN_REPORT_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("ORIGIN_REPORT_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("ORIGIN_REPORT_CLICKHOUSE_DB", "originreport"),
			User:     getEnv("ORIGIN_REPORT_CLICKHOUSE_USER", "default"),
			Password: getEnv("ORIGIN_REPORT_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ORIGIN_REPORT_AUTH_ENABLED", true),
			MasterKey: getEnv("ORIGIN_REPORT_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("ORIGIN_REPORT_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/track/touch"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getBoolEnv("ORIGIN_REPORT_RATE_LIMIT_ENABLED", true),
			TrackRPS:   getFloatEnv("ORIGIN_REPORT_RATE_LIMIT_TRACK_RPS", 1000),
			TrackBurst: getIntEnv("ORIGIN_REPORT_RATE_LIMIT_TRACK_BURST", 100),
			AdminRPS:   getFloatEnv("ORIGIN_REPORT_RATE_LIMIT_ADMIN_RPS", 100),
			AdminBurst: getIntEnv("ORIGIN_REPORT_RATE_LIMIT_ADMIN_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("ORIGIN_REPORT_LOG_LEVEL", "info"),
			Format: getEnv("ORIGIN_REPORT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ORIGIN_REPORT_METRICS_ENABLED", true),
			Path:    getEnv("ORIGIN_REPORT_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("ORIGIN_REPORT_GEO_ENABLED", false),
			DatabasePath: getEnv("ORIGIN_REPORT_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
			CacheSize:    getIntEnv("ORIGIN_REPORT_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("ORIGIN_REPORT_GEO_CACHE_TTL", 1*time.Hour),
		},
		Tracking: TrackingConfig{
			OriginCookie:  getEnv("ORIGIN_REPORT_ORIGIN_COOKIE", "shop_origin"),
			VisitorCookie: getEnv("ORIGIN_REPORT_VISITOR_COOKIE", "shop_visitor"),
			CookieTTL:     getDurationEnv("ORIGIN_REPORT_COOKIE_TTL", 30*24*time.Hour),
			SiteHost:      getEnv("ORIGIN_REPORT_SITE_HOST", ""),
		},
		Report: ReportConfig{
			UnitPrice:          getFloatEnv("ORIGIN_REPORT_UNIT_PRICE", 19.00),
			FacebookAdjustment: getIntEnv("ORIGIN_REPORT_FB_ADJUSTMENT", 2),
			Timezone:           getEnv("ORIGIN_REPORT_TIMEZONE", "UTC"),
			CacheTTL:           getDurationEnv("ORIGIN_REPORT_REPORT_CACHE_TTL", 60*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ORIGIN_REPORT_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Report.UnitPrice < 0 {
		return fmt.Errorf("ORIGIN_REPORT_UNIT_PRICE must not be negative")
	}
	if c.Report.FacebookAdjustment < 0 {
		return fmt.Errorf("ORIGIN_REPORT_FB_ADJUSTMENT must not be negative")
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("invalid ORIGIN_REPORT_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the store's reporting timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
