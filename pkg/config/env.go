package config

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "BAZAAR_APP_ENV"
	EnvPort      = "BAZAAR_APP_PORT"
	EnvLogLevel  = "BAZAAR_LOG_LEVEL"
	EnvLogFormat = "BAZAAR_LOG_FORMAT"

	EnvDBDSN  = "BAZAAR_DB_DSN"
	EnvDBHost = "BAZAAR_DB_HOST"
	EnvDBUser = "BAZAAR_DB_USER"
	EnvDBName = "BAZAAR_DB_NAME"

	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvJWTSecret  = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer  = "BAZAAR_JWT_ISSUER"
	EnvJWTExpMins = "BAZAAR_JWT_EXPIRATION_MINUTES"

	EnvGatewayKeySecret = "BAZAAR_GATEWAY_KEY_SECRET"

	EnvShippingChargeCents   = "BAZAAR_SHIPPING_CHARGE_CENTS"
	EnvDefaultCommissionRate = "BAZAAR_DEFAULT_COMMISSION_RATE"
	EnvReturnsEligibleStatus = "BAZAAR_RETURNS_ELIGIBLE_STATUS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
