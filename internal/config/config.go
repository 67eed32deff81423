// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	DBURL          string `mapstructure:"DB_URL"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	GithubClientID     string   `mapstructure:"GITHUB_CLIENT_ID"`
	GithubClientSecret string   `mapstructure:"GITHUB_CLIENT_SECRET"`
	GithubRedirectURI  string   `mapstructure:"GITHUB_REDIRECT_URI"`
	GithubOAuthURL     string   `mapstructure:"GITHUB_OAUTH_URL"`
	GithubAPIURL       string   `mapstructure:"GITHUB_API_URL"`
	GithubOAuthScopes  []string `mapstructure:"GITHUB_OAUTH_SCOPES"`

	TokenEncryptionKey  string        `mapstructure:"TOKEN_ENCRYPTION_KEY"`
	TokenEncryptionSalt string        `mapstructure:"TOKEN_ENCRYPTION_SALT"`
	OAuthStateSecret    string        `mapstructure:"OAUTH_STATE_SECRET"`
	OAuthStateTTL       time.Duration `mapstructure:"OAUTH_STATE_TTL"`
	TokenRefreshSkew    time.Duration `mapstructure:"TOKEN_REFRESH_SKEW"`
	DefaultTokenTTL     time.Duration `mapstructure:"DEFAULT_TOKEN_TTL"`
	TokenSweepInterval  time.Duration `mapstructure:"TOKEN_SWEEP_INTERVAL"`

	RemoteCallTimeout   time.Duration `mapstructure:"REMOTE_CALL_TIMEOUT"`
	IngestTimeout       time.Duration `mapstructure:"INGEST_TIMEOUT"`
	PRConcurrency       int           `mapstructure:"PR_CONCURRENCY"`
	IgnoreExtraSegments []string      `mapstructure:"IGNORE_EXTRA_SEGMENTS"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values. Required keys get an empty default so AutomaticEnv can bind them.
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("DB_URL", "")
	viper.SetDefault("MIGRATIONS_PATH", "file://migrations")
	viper.SetDefault("GITHUB_CLIENT_ID", "")
	viper.SetDefault("GITHUB_CLIENT_SECRET", "")
	viper.SetDefault("GITHUB_REDIRECT_URI", "")
	viper.SetDefault("GITHUB_OAUTH_URL", "https://github.com")
	viper.SetDefault("GITHUB_API_URL", "https://api.github.com/")
	viper.SetDefault("GITHUB_OAUTH_SCOPES", "repo,user")
	viper.SetDefault("TOKEN_ENCRYPTION_KEY", "")
	viper.SetDefault("TOKEN_ENCRYPTION_SALT", "")
	viper.SetDefault("OAUTH_STATE_SECRET", "")
	viper.SetDefault("OAUTH_STATE_TTL", "10m")
	viper.SetDefault("TOKEN_REFRESH_SKEW", "1m")
	viper.SetDefault("DEFAULT_TOKEN_TTL", "8h")
	viper.SetDefault("TOKEN_SWEEP_INTERVAL", "15m")
	viper.SetDefault("REMOTE_CALL_TIMEOUT", "30s")
	viper.SetDefault("INGEST_TIMEOUT", "10m")
	viper.SetDefault("PR_CONCURRENCY", 4)
	viper.SetDefault("IGNORE_EXTRA_SEGMENTS", "")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.GithubOAuthScopes = compact(cfg.GithubOAuthScopes)
	cfg.IgnoreExtraSegments = compact(cfg.IgnoreExtraSegments)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// Validate required fields
	if c.DBURL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.GithubClientID == "" || c.GithubClientSecret == "" {
		return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required configuration fields")
	}
	if c.GithubRedirectURI == "" {
		return errors.New("GITHUB_REDIRECT_URI is a required configuration field")
	}
	if c.TokenEncryptionKey == "" {
		return errors.New("TOKEN_ENCRYPTION_KEY is a required configuration field")
	}
	if len(c.TokenEncryptionSalt) < 16 {
		return errors.New("TOKEN_ENCRYPTION_SALT must be at least 16 characters")
	}
	if c.OAuthStateSecret == "" {
		return errors.New("OAUTH_STATE_SECRET is a required configuration field")
	}
	if c.RemoteCallTimeout <= 0 || c.IngestTimeout <= 0 {
		return errors.New("REMOTE_CALL_TIMEOUT and INGEST_TIMEOUT must be positive durations")
	}
	if c.PRConcurrency < 1 {
		return errors.New("PR_CONCURRENCY must be at least 1")
	}
	if c.TokenSweepInterval < 0 {
		return errors.New("TOKEN_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
