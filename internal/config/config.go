package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Development-only fallback secrets. Load refuses to run a production
// deployment with either of these still in place.
const (
	DevAccessSecret  = "dev-access-secret-do-not-deploy"
	DevRefreshSecret = "dev-refresh-secret-do-not-deploy"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AccessSecret  string        `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshSecret string        `mapstructure:"REFRESH_TOKEN_SECRET"`
	AccessTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	TokenIssuer   string        `mapstructure:"TOKEN_ISSUER"`
	TokenAudience string        `mapstructure:"TOKEN_AUDIENCE"`

	BcryptCost int `mapstructure:"BCRYPT_COST"`

	GlobalRateLimit  int           `mapstructure:"GLOBAL_RATE_LIMIT"`
	GlobalRateWindow time.Duration `mapstructure:"GLOBAL_RATE_WINDOW"`
	StrictRateLimit  int           `mapstructure:"STRICT_RATE_LIMIT"`
	StrictRateWindow time.Duration `mapstructure:"STRICT_RATE_WINDOW"`
	ProgressiveBlock bool          `mapstructure:"PROGRESSIVE_BLOCK"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("ACCESS_TOKEN_SECRET", DevAccessSecret)
	v.SetDefault("REFRESH_TOKEN_SECRET", DevRefreshSecret)
	v.SetDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	v.SetDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	v.SetDefault("TOKEN_ISSUER", "hospital-api")
	v.SetDefault("TOKEN_AUDIENCE", "hospital-clients")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("GLOBAL_RATE_LIMIT", 100)
	v.SetDefault("GLOBAL_RATE_WINDOW", 15*time.Minute)
	v.SetDefault("STRICT_RATE_LIMIT", 5)
	v.SetDefault("STRICT_RATE_WINDOW", 15*time.Minute)
	v.SetDefault("PROGRESSIVE_BLOCK", true)

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
		"ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL",
		"TOKEN_ISSUER", "TOKEN_AUDIENCE", "BCRYPT_COST",
		"GLOBAL_RATE_LIMIT", "GLOBAL_RATE_WINDOW", "STRICT_RATE_LIMIT", "STRICT_RATE_WINDOW",
		"PROGRESSIVE_BLOCK",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. A production
// deployment must override both signing secrets: a committed default
// secret would let anyone forge tokens, so we refuse to start rather
// than fall back silently.
func (c *Config) Validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}
	if c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.BcryptCost < 12 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 12 and 31, got %d", c.BcryptCost)
	}
	if c.GlobalRateLimit <= 0 || c.StrictRateLimit <= 0 {
		return fmt.Errorf("rate limit thresholds must be positive")
	}
	if c.GlobalRateWindow <= 0 || c.StrictRateWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	if c.IsProduction() {
		if c.AccessSecret == "" || c.AccessSecret == DevAccessSecret {
			return fmt.Errorf("ACCESS_TOKEN_SECRET must be explicitly set in production")
		}
		if c.RefreshSecret == "" || c.RefreshSecret == DevRefreshSecret {
			return fmt.Errorf("REFRESH_TOKEN_SECRET must be explicitly set in production")
		}
		if len(c.AccessSecret) < 32 || len(c.RefreshSecret) < 32 {
			return fmt.Errorf("production signing secrets must be at least 32 bytes")
		}
	}

	return nil
}
