package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL        time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RealtimeSendBuffer  int           `mapstructure:"REALTIME_SEND_BUFFER"`
	RealtimeIdleTimeout time.Duration `mapstructure:"REALTIME_IDLE_TIMEOUT"`
	RealtimeSessionTick time.Duration `mapstructure:"REALTIME_SESSION_CHECK"`
	InsightBaseURL      string        `mapstructure:"INSIGHT_BASE_URL"`
	InsightAPIKey       string        `mapstructure:"INSIGHT_API_KEY"`
	InsightModel        string        `mapstructure:"INSIGHT_MODEL"`
	InsightTimeout      time.Duration `mapstructure:"INSIGHT_TIMEOUT"`
}

// minSigningKeyLen is the shortest HS256 key accepted outside development.
const minSigningKeyLen = 32

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REALTIME_SEND_BUFFER", 256)
	v.SetDefault("REALTIME_IDLE_TIMEOUT", "90s")
	v.SetDefault("REALTIME_SESSION_CHECK", "15s")
	v.SetDefault("INSIGHT_BASE_URL", "https://ai.gateway.lovable.dev/v1")
	v.SetDefault("INSIGHT_MODEL", "google/gemini-2.5-flash")
	v.SetDefault("INSIGHT_TIMEOUT", "20s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
		"AUTH_SIGNING_KEY", "AUTH_TOKEN_TTL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"REALTIME_SEND_BUFFER", "REALTIME_IDLE_TIMEOUT", "REALTIME_SESSION_CHECK",
		"INSIGHT_BASE_URL", "INSIGHT_API_KEY", "INSIGHT_MODEL", "INSIGHT_TIMEOUT",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: AUTH_SIGNING_KEY is empty; using an insecure development key.")
		cfg.AuthSigningKey = "wardwatch-development-signing-key-change-me"
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// InsightEnabled reports whether the external inference endpoint is configured.
func (c *Config) InsightEnabled() bool {
	return c.InsightAPIKey != "" && c.InsightBaseURL != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key of at least 32 bytes is required for session tokens.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < minSigningKeyLen {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes when ENV=%q", minSigningKeyLen, c.Env)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RealtimeSendBuffer <= 0 {
		return fmt.Errorf("REALTIME_SEND_BUFFER must be positive, got %d", c.RealtimeSendBuffer)
	}
	return nil
}
