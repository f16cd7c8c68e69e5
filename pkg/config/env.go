package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "PASTRYPICKUP_APP_ENV"
	EnvPort          = "PASTRYPICKUP_APP_PORT"
	EnvDBDSN         = "PASTRYPICKUP_DB_DSN"
	EnvDBHost        = "PASTRYPICKUP_DB_HOST"
	EnvDBUser        = "PASTRYPICKUP_DB_USER"
	EnvDBName        = "PASTRYPICKUP_DB_NAME"
	EnvRedisURL      = "PASTRYPICKUP_REDIS_URL"
	EnvJWTSecret     = "PASTRYPICKUP_JWT_SECRET"
	EnvJWTIssuer     = "PASTRYPICKUP_JWT_ISSUER"
	EnvStoreTimezone = "PASTRYPICKUP_STORE_TIMEZONE"
	EnvOrderPrefix   = "PASTRYPICKUP_ORDER_NUMBER_PREFIX"
	EnvGoldMult      = "PASTRYPICKUP_LOYALTY_GOLD_MULTIPLIER"
	EnvGCPProjectID  = "PASTRYPICKUP_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
