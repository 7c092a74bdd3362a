package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Session       SessionConfig       `mapstructure:"session"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	BCryptCost    int           `mapstructure:"bcrypt_cost"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
}

// SessionConfig tunes the per-client session runtime.
type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ErrorTTL      time.Duration `mapstructure:"error_ttl"`
	AutoProvision bool          `mapstructure:"auto_provision"`
	// LoginRatePerMinute caps sign-in attempts per client; zero disables.
	LoginRatePerMinute float64 `mapstructure:"login_rate_per_minute"`
	LoginBurst         int     `mapstructure:"login_burst"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults lists the values applied before the config file and environment
// are read, keyed the way viper addresses them.
func Defaults() map[string]any {
	return map[string]any{
		"env":                             "development",
		"http_server.port":                8080,
		"http_server.read_header_timeout": 5 * time.Second,
		"http_server.read_timeout":        15 * time.Second,
		"http_server.write_timeout":       15 * time.Second,
		"http_server.idle_timeout":        60 * time.Second,
		"http_server.shutdown_timeout":    30 * time.Second,
		"database.max_open_conns":         10,
		"database.max_idle_conns":         5,
		"database.conn_max_lifetime":      30 * time.Minute,
		"database.conn_max_idle_time":     5 * time.Minute,
		"security.token_ttl":              time.Hour,
		"security.bcrypt_cost":            12,
		"session.idle_timeout":            5 * time.Minute,
		"session.error_ttl":               5 * time.Second,
		"session.auto_provision":          true,
		"session.login_rate_per_minute":   10.0,
		"session.login_burst":             5,
		"observability.metrics.enabled":   false,
		"observability.metrics.path":      "/metrics",
		"observability.logging.level":     "info",
		"observability.logging.format":    "text",
	}
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the configuration from environment variables
// only, for container deployments.
func LoadConfigFromEnv() *Config {
	d := Defaults()
	return &Config{
		Env: getEnv("APP_ENV", d["env"].(string)),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", d["http_server.port"].(int)),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", d["http_server.read_header_timeout"].(time.Duration)),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", d["http_server.read_timeout"].(time.Duration)),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", d["http_server.write_timeout"].(time.Duration)),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", d["http_server.idle_timeout"].(time.Duration)),
			ShutdownTimeout:   getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", d["http_server.shutdown_timeout"].(time.Duration)),
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", d["database.max_open_conns"].(int)),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", d["database.max_idle_conns"].(int)),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", d["database.conn_max_lifetime"].(time.Duration)),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", d["database.conn_max_idle_time"].(time.Duration)),
		},
		Security: SecurityConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvAsDuration("TOKEN_TTL", d["security.token_ttl"].(time.Duration)),
			BCryptCost:    getEnvAsInt("BCRYPT_COST", d["security.bcrypt_cost"].(int)),
			SecureCookies: getEnvAsBool("SECURE_COOKIES", true),
		},
		Session: SessionConfig{
			IdleTimeout:        getEnvAsDuration("SESSION_IDLE_TIMEOUT", d["session.idle_timeout"].(time.Duration)),
			ErrorTTL:           getEnvAsDuration("SESSION_ERROR_TTL", d["session.error_ttl"].(time.Duration)),
			AutoProvision:      getEnvAsBool("SESSION_AUTO_PROVISION", d["session.auto_provision"].(bool)),
			LoginRatePerMinute: getEnvAsFloat("SESSION_LOGIN_RATE_PER_MINUTE", d["session.login_rate_per_minute"].(float64)),
			LoginBurst:         getEnvAsInt("SESSION_LOGIN_BURST", d["session.login_burst"].(int)),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", d["observability.metrics.enabled"].(bool)),
				Path:    getEnv("METRICS_PATH", d["observability.metrics.path"].(string)),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", d["observability.logging.level"].(string)),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("observability config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for _, origin := range c.Origins() {
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

// Origins splits AllowedOrigins into trimmed entries.
func (c *ServerConfig) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.TokenTTL < time.Minute {
		return errors.New("token_ttl must be at least 1m")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be positive")
	}
	if c.ErrorTTL <= 0 {
		return errors.New("error_ttl must be positive")
	}
	if c.LoginRatePerMinute < 0 {
		return errors.New("login_rate_per_minute cannot be negative")
	}
	if c.LoginRatePerMinute > 0 && c.LoginBurst < 1 {
		return errors.New("login_burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

func (c *ObservabilityConfig) Validate() error {
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics path must start with /")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
