package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	envProduction = "production"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr       string
		Env        string
		CORSOrigin string
		// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honoured. Empty trusts none.
		TrustedProxies []string
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Auth struct {
		AccessTokenSecret  string
		AccessTokenExpiry  string
		RefreshTokenSecret string
		RefreshTokenExpiry string
		MinPasswordLength  int
		RevealUnknownEmail bool
		RevokeOnReuse      bool
		RateLimit          float64
		RateBurst          int

		AccessTTL  time.Duration `mapstructure:"-"`
		RefreshTTL time.Duration `mapstructure:"-"`
	}
	Agent struct {
		BaseURL string
		Timeout time.Duration
		Retries int
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// IsProduction reports whether the server runs with production cookie and log settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, envProduction)
}

// env names used by earlier deployments, checked after the ADVISOR_ ones
var envAliases = map[string]string{
	"auth.accesstokensecret":  "ACCESS_TOKEN_SECRET",
	"auth.accesstokenexpiry":  "ACCESS_TOKEN_EXPIRY",
	"auth.refreshtokensecret": "REFRESH_TOKEN_SECRET",
	"auth.refreshtokenexpiry": "REFRESH_TOKEN_EXPIRY",
	"database.dsn":            "DATABASE_URL",
	"agent.baseurl":           "AGENT_BASE_URL",
	"server.corsorigin":       "CORS_ORIGIN",
	"server.env":              "NODE_ENV",
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// existing environment wins over .env
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.corsorigin", "http://localhost:5173")
	v.SetDefault("server.trustedproxies", []string{})
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/advisor.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.accesstokensecret", "")
	v.SetDefault("auth.accesstokenexpiry", "15m")
	v.SetDefault("auth.refreshtokensecret", "")
	v.SetDefault("auth.refreshtokenexpiry", "10d")
	v.SetDefault("auth.minpasswordlength", 1)
	v.SetDefault("auth.revealunknownemail", false)
	v.SetDefault("auth.revokeonreuse", false)
	v.SetDefault("auth.ratelimit", 5)
	v.SetDefault("auth.rateburst", 10)
	v.SetDefault("agent.baseurl", "http://127.0.0.1:8000")
	v.SetDefault("agent.timeout", "0s")
	v.SetDefault("agent.retries", 0)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "portfolio-archives")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")

	for key, alias := range envAliases {
		envKey := "ADVISOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", alias, err)
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	var err error
	if c.Auth.AccessTTL, err = ParseDuration(c.Auth.AccessTokenExpiry); err != nil {
		return fmt.Errorf("auth.accesstokenexpiry: %w", err)
	}
	if c.Auth.RefreshTTL, err = ParseDuration(c.Auth.RefreshTokenExpiry); err != nil {
		return fmt.Errorf("auth.refreshtokenexpiry: %w", err)
	}
	if c.Auth.AccessTokenSecret == "" || c.Auth.RefreshTokenSecret == "" {
		return errors.New("both access and refresh token secrets must be configured")
	}
	proxies := c.Server.TrustedProxies[:0]
	for _, p := range c.Server.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	c.Server.TrustedProxies = proxies

	if c.Agent.Timeout < 0 {
		return errors.New("agent.timeout must not be negative")
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	// a postgres URL alone is enough to switch drivers
	if c.Database.Driver == DriverSQLite && isPostgresDSN(c.Database.DSN) {
		c.Database.Driver = DriverPostgres
	}
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// ParseDuration accepts Go durations plus a "d" suffix for whole or fractional days.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty duration")
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		d := time.Duration(n * float64(24*time.Hour))
		if d <= 0 {
			return 0, fmt.Errorf("duration %q must be positive", raw)
		}
		return d, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
