package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/pkg/pagination"
)

type Config struct {
	Port              string `mapstructure:"PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogFormat         string `mapstructure:"LOG_FORMAT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DBDriver          string `mapstructure:"DB_DRIVER"`
	DBMaxConns        int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32  `mapstructure:"DB_MIN_CONNS"`
	PHIEncryptionKey  string `mapstructure:"PHI_ENCRYPTION_KEY"`
	PHIKeyVersion     int    `mapstructure:"PHI_KEY_VERSION"`
	PHIPreviousKeys   string `mapstructure:"PHI_PREVIOUS_KEYS"`
	QueryDefaultLimit int    `mapstructure:"QUERY_DEFAULT_LIMIT"`
	QueryMaxLimit     int    `mapstructure:"QUERY_MAX_LIMIT"`
	DateFallback      string `mapstructure:"DATE_FALLBACK"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	RecordSequence    string `mapstructure:"RECORD_SEQUENCE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT",
	"DATABASE_URL", "DB_DRIVER", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"PHI_ENCRYPTION_KEY", "PHI_KEY_VERSION", "PHI_PREVIOUS_KEYS",
	"QUERY_DEFAULT_LIMIT", "QUERY_MAX_LIMIT", "DATE_FALLBACK",
	"REDIS_URL", "RECORD_SEQUENCE",
}

// Load reads settings from the environment and an optional .env file. It does
// not validate them; callers that need key material call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_DRIVER", "pgx")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("PHI_KEY_VERSION", 1)
	v.SetDefault("QUERY_DEFAULT_LIMIT", pagination.DefaultLimit)
	v.SetDefault("QUERY_MAX_LIMIT", pagination.MaxLimit)
	v.SetDefault("DATE_FALLBACK", string(hydrate.DateNow))
	v.SetDefault("RECORD_SEQUENCE", "postgres")

	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.RecordSequence = strings.ToLower(strings.TrimSpace(cfg.RecordSequence))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Limits returns the configured page size bounds.
func (c *Config) Limits() pagination.Limits {
	return pagination.Limits{Default: c.QueryDefaultLimit, Max: c.QueryMaxLimit}
}

// DatePolicy returns the parsed DATE_FALLBACK setting.
func (c *Config) DatePolicy() (hydrate.DatePolicy, error) {
	return hydrate.ParseDatePolicy(c.DateFallback)
}

// Keyring builds the PHI key ring from the configured key material.
func (c *Config) Keyring() (*phi.Keyring, error) {
	prev, err := phi.ParsePreviousKeys(c.PHIPreviousKeys)
	if err != nil {
		return nil, err
	}
	return phi.NewCipherFromConfig(c.PHIEncryptionKey, c.PHIKeyVersion, prev)
}

// Validate checks that the configuration is safe to serve with. Missing PHI
// key material is always fatal.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.DBDriver {
	case "pgx", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be \"pgx\" or \"postgres\", got %q", c.DBDriver)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if strings.TrimSpace(c.PHIEncryptionKey) == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY: %w", phi.ErrMissingKeyMaterial)
	}
	if c.IsProduction() && len(c.PHIEncryptionKey) < 32 {
		return fmt.Errorf("PHI_ENCRYPTION_KEY must be at least 32 characters in production")
	}
	if c.PHIKeyVersion < 1 {
		return fmt.Errorf("PHI_KEY_VERSION must be positive, got %d", c.PHIKeyVersion)
	}
	if _, err := phi.ParsePreviousKeys(c.PHIPreviousKeys); err != nil {
		return fmt.Errorf("PHI_PREVIOUS_KEYS: %w", err)
	}

	if c.QueryDefaultLimit < 1 || c.QueryMaxLimit < c.QueryDefaultLimit {
		return fmt.Errorf("QUERY_DEFAULT_LIMIT (%d) must be between 1 and QUERY_MAX_LIMIT (%d)", c.QueryDefaultLimit, c.QueryMaxLimit)
	}
	if _, err := c.DatePolicy(); err != nil {
		return fmt.Errorf("DATE_FALLBACK: %w", err)
	}

	switch c.RecordSequence {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RECORD_SEQUENCE is \"redis\"")
		}
	default:
		return fmt.Errorf("RECORD_SEQUENCE must be \"redis\" or \"postgres\", got %q", c.RecordSequence)
	}
	return nil
}
