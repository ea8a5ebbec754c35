package config

// EnvPrefix is empty: the service reads bare variable names so deployments
// can share a common .env with the legacy ingestors.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv       = "APP_ENV"
	EnvPort         = "PORT"
	EnvLogLevel     = "LOG_LEVEL"
	EnvAPIKey       = "API_KEY"
	EnvMasterKey    = "ENCRYPTION_MASTER_KEY"
	EnvStripeSecret = "STRIPE_WEBHOOK_SECRET"
	EnvClientOrigin = "CLIENT_ORIGIN"
	EnvCORSAllowAll = "CORS_ALLOW_ALL"
	EnvCacheTTL     = "CACHE_TTL"
	EnvAutoMigrate  = "AUTO_MIGRATE"

	EnvDBDSN    = "DB_DSN"
	EnvDBHost   = "DB_HOST"
	EnvDBPort   = "DB_PORT"
	EnvDBUser   = "DB_USER"
	EnvDBPass   = "DB_PASSWORD"
	EnvDBName   = "DB_NAME"
	EnvRedisURL = "REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
