package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Crawler  CrawlerConfig
	Browser  BrowserConfig
	HTTP     HTTPConfig
	LLM      LLMConfig
	Export   ExportConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type CrawlerConfig struct {
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
	AdaptivePacing bool
	FetchRetries   int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
}

type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

type ExportConfig struct {
	Dir     string
	Formats []string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MetricsConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),
		},
		Crawler: CrawlerConfig{
			PageDelayMin:   getDurationOrDefault("CRAWL_PAGE_DELAY_MIN", 2500*time.Millisecond),
			PageDelayMax:   getDurationOrDefault("CRAWL_PAGE_DELAY_MAX", 4*time.Second),
			AdaptivePacing: getBoolOrDefault("CRAWL_ADAPTIVE_PACING", false),
			FetchRetries:   getIntOrDefault("CRAWL_FETCH_RETRIES", 2),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9,fr;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Paris"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent()),
		},
		HTTP: HTTPConfig{
			Timeout:    getDurationOrDefault("HTTP_TIMEOUT", 20*time.Second),
			MaxRetries: getIntOrDefault("HTTP_MAX_RETRIES", 3),
			UserAgent:  getEnvOrDefault("HTTP_USER_AGENT", defaultUserAgent()),
		},
		LLM: LLMConfig{
			APIKey:      os.Getenv("OPENROUTER_API_KEY"),
			BaseURL:     getEnvOrDefault("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvOrDefault("LLM_MODEL", "meta-llama/llama-3.2-3b-instruct:free"),
			Timeout:     getDurationOrDefault("LLM_TIMEOUT", 60*time.Second),
			Temperature: getFloatOrDefault("LLM_TEMPERATURE", 0),
		},
		Export: ExportConfig{
			Dir:     getEnvOrDefault("EXPORT_DIR", "exports"),
			Formats: getStringSliceOrDefault("EXPORT_FORMATS", []string{"json", "csv", "xlsx"}),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "ski_catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Metrics: MetricsConfig{
			Addr: getEnvOrDefault("METRICS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Crawler.PageDelayMin > c.Crawler.PageDelayMax {
		return fmt.Errorf("CRAWL_PAGE_DELAY_MIN cannot be greater than CRAWL_PAGE_DELAY_MAX")
	}

	if c.Crawler.FetchRetries < 0 {
		return fmt.Errorf("CRAWL_FETCH_RETRIES cannot be negative")
	}

	if len(c.Export.Formats) == 0 {
		return fmt.Errorf("EXPORT_FORMATS must name at least one format")
	}
	for _, f := range c.Export.Formats {
		switch f {
		case "json", "csv", "xlsx":
		default:
			return fmt.Errorf("unknown export format %q", f)
		}
	}

	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when DB_ENABLED is set")
	}

	return nil
}

// ConnString builds the postgres connection string for pgx.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// SlogLevel maps the configured level name to a slog level. Unknown names
// fall back to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func defaultUserAgent() string {
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
}
