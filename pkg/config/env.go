package config

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	BlobBackendLocal      = "local"
	BlobBackendGCS        = "gcs"
	BlobBackendCloudinary = "cloudinary"
)

const (
	EnvAppEnv      = "PAWPASS_APP_ENV"
	EnvPort        = "PAWPASS_APP_PORT"
	EnvBaseURL     = "PAWPASS_APP_BASE_URL"
	EnvDBDSN       = "PAWPASS_DB_DSN"
	EnvDBHost      = "PAWPASS_DB_HOST"
	EnvDBUser      = "PAWPASS_DB_USER"
	EnvDBName      = "PAWPASS_DB_NAME"
	EnvRedisURL    = "PAWPASS_REDIS_URL"
	EnvJWTSecret   = "PAWPASS_JWT_SECRET"
	EnvJWTIssuer   = "PAWPASS_JWT_ISSUER"
	EnvBlobBackend = "PAWPASS_BLOB_BACKEND"
	EnvCartTTL     = "PAWPASS_CART_TTL"
	EnvStripeKey   = "PAWPASS_STRIPE_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
