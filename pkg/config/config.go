package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Auth    AuthConfig
	Crypto  CryptoConfig
	DB      DBConfig
	Redis   RedisConfig
	Cache   CacheConfig
	CORS    CORSConfig
	Stripe  StripeConfig
	Forward ForwardConfig
	Flags   FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"APP_ENV" default:"development"`
	Port         string `envconfig:"PORT" default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AuthConfig carries the shared key that guards the /api surface.
type AuthConfig struct {
	APIKey string `envconfig:"API_KEY" required:"true"`
}

// CryptoConfig carries the master key for destination secret envelopes.
// Leaving it unset disables signing: deliveries go out unsigned.
type CryptoConfig struct {
	MasterKey string `envconfig:"ENCRYPTION_MASTER_KEY"`
}

type DBConfig struct {
	DSN    string `envconfig:"DB_DSN"`
	Driver string `envconfig:"DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DB_HOST"`
	LegacyPort     int    `envconfig:"DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DB_USER"`
	LegacyPassword string `envconfig:"DB_PASSWORD"`
	LegacyName     string `envconfig:"DB_NAME"`
	LegacySSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional: without a URL the API runs with response caching off.
type RedisConfig struct {
	URL          string        `envconfig:"REDIS_URL"`
	Address      string        `envconfig:"REDIS_ADDR"`
	Password     string        `envconfig:"REDIS_PASSWORD"`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

type CORSConfig struct {
	ClientOrigin string `envconfig:"CLIENT_ORIGIN"`
	AllowAll     bool   `envconfig:"CORS_ALLOW_ALL" default:"false"`
}

type StripeConfig struct {
	WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// ForwardConfig bounds outbound delivery behavior.
type ForwardConfig struct {
	TimeoutCap time.Duration `envconfig:"FORWARD_TIMEOUT_CAP" default:"60s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
