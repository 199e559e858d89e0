package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Environment string         `yaml:"environment" env:"APP_ENV" env-default:"development"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
	Advisor     AdvisorConfig  `yaml:"advisor"`
	Provider    ProviderConfig `yaml:"provider"`
	Log         LogConfig      `yaml:"log"`
	CORS        CORSConfig     `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET" env-required:"true"`
	JWTIssuer string `yaml:"jwt_issuer" env:"AUTH_JWT_ISSUER" env-default:"finwell"`
}

// AdvisorConfig holds the advisor gatekeeper policy values.
type AdvisorConfig struct {
	RateLimitRequests  int           `yaml:"rate_limit_requests"  env:"ADVISOR_RATE_LIMIT_REQUESTS"  env-default:"8"`
	RateLimitWindow    time.Duration `yaml:"rate_limit_window"    env:"ADVISOR_RATE_LIMIT_WINDOW"    env-default:"60s"`
	RegenerateCooldown time.Duration `yaml:"regenerate_cooldown"  env:"ADVISOR_REGENERATE_COOLDOWN"  env-default:"15s"`
	FreeUsageRetention time.Duration `yaml:"free_usage_retention" env:"ADVISOR_FREE_USAGE_RETENTION" env-default:"168h"`
	DiagBufferSize     int           `yaml:"diag_buffer_size"     env:"ADVISOR_DIAG_BUFFER_SIZE"     env-default:"128"`
}

// ProviderConfig holds the external text-generation provider settings.
// The provider is optional: when AccountID or APIToken is empty the advisor
// runs in fallback-only mode.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"     env:"PROVIDER_BASE_URL"     env-default:"https://api.cloudflare.com/client/v4"`
	AccountID   string        `yaml:"account_id"   env:"PROVIDER_ACCOUNT_ID"`
	APIToken    string        `yaml:"api_token"    env:"PROVIDER_API_TOKEN"`
	Model       string        `yaml:"model"        env:"PROVIDER_MODEL"        env-default:"@cf/meta/llama-3.1-8b-instruct"`
	MaxTokens   int           `yaml:"max_tokens"   env:"PROVIDER_MAX_TOKENS"   env-default:"1024"`
	MaxAttempts int           `yaml:"max_attempts" env:"PROVIDER_MAX_ATTEMPTS" env-default:"2"`
	Timeout     time.Duration `yaml:"timeout"      env:"PROVIDER_TIMEOUT"      env-default:"30s"`
}

// Configured reports whether the provider credentials are complete.
func (c ProviderConfig) Configured() bool {
	return c.AccountID != "" && c.APIToken != "" && c.Model != ""
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Authorization,Content-Type,X-Advisor-Request-Id"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"true"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// IsProduction reports whether the app runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
