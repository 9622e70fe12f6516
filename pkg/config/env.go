package config

const (
	EnvPrefix = "VOLTRIDE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv          = "VOLTRIDE_APP_ENV"
	EnvPort            = "VOLTRIDE_APP_PORT"
	EnvDBDSN           = "VOLTRIDE_DB_DSN"
	EnvDBHost          = "VOLTRIDE_DB_HOST"
	EnvDBUser          = "VOLTRIDE_DB_USER"
	EnvDBName          = "VOLTRIDE_DB_NAME"
	EnvUseSQLite       = "VOLTRIDE_USE_SQLITE"
	EnvRedisURL        = "VOLTRIDE_REDIS_URL"
	EnvJWTSecret       = "VOLTRIDE_JWT_SECRET"
	EnvJWTIssuer       = "VOLTRIDE_JWT_ISSUER"
	EnvJWTExpMins      = "VOLTRIDE_JWT_EXPIRATION_MINUTES"
	EnvPayOSClientID   = "VOLTRIDE_PAYOS_CLIENT_ID"
	EnvPayOSAPIKey     = "VOLTRIDE_PAYOS_API_KEY"
	EnvPayOSChecksum   = "VOLTRIDE_PAYOS_CHECKSUM_KEY"
	EnvShippingFeePerK = "VOLTRIDE_SHIPPING_FEE_PER_KM"
	EnvPaymentsExpiry  = "VOLTRIDE_PAYMENTS_EXPIRY"
	EnvPaidOrderStatus = "VOLTRIDE_PAYMENTS_PAID_ORDER_STATUS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
