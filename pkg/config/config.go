package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Features   FeatureFlagsConfig
	Stripe     StripeConfig
	Blob       BlobConfig
	GCP        GCPConfig
	GCS        GCSConfig
	Cloudinary CloudinaryConfig
	PubSub     PubSubConfig
	Cart       CartConfig
	Vouchers   VoucherConfig
	Webhook    WebhookConfig
	Cron       CronConfig
	Outbox     OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Blob.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAWPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"PAWPASS_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"PAWPASS_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"PAWPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAWPASS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// PublicBaseURL returns the base URL without a trailing slash.
func (a AppConfig) PublicBaseURL() string {
	return strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
}

type ServiceConfig struct {
	Kind string `envconfig:"PAWPASS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAWPASS_DB_DSN"`
	Driver string `envconfig:"PAWPASS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAWPASS_DB_HOST"`
	LegacyPort     int    `envconfig:"PAWPASS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAWPASS_DB_USER"`
	LegacyPassword string `envconfig:"PAWPASS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAWPASS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAWPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAWPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAWPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAWPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAWPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PAWPASS_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAWPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAWPASS_REDIS_ADDR"`
	Password     string        `envconfig:"PAWPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAWPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAWPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAWPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAWPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAWPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAWPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
	Namespace    string        `envconfig:"PAWPASS_REDIS_NAMESPACE" default:"pp"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PAWPASS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAWPASS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PAWPASS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAWPASS_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"PAWPASS_STRIPE_API_KEY"`
	Secret         string        `envconfig:"PAWPASS_STRIPE_SECRET"`
	Env            string        `envconfig:"PAWPASS_STRIPE_ENV" default:"test"`
	Currency       string        `envconfig:"PAWPASS_STRIPE_CURRENCY" default:"eur"`
	RequestTimeout time.Duration `envconfig:"PAWPASS_STRIPE_REQUEST_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BlobConfig struct {
	Backend        string `envconfig:"PAWPASS_BLOB_BACKEND" default:"local"`
	LocalRoot      string `envconfig:"PAWPASS_BLOB_LOCAL_ROOT" default:"./media"`
	LocalPublicURL string `envconfig:"PAWPASS_BLOB_LOCAL_PUBLIC_URL" default:"http://localhost:8080/media"`
}

func (b BlobConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(b.Backend)) {
	case BlobBackendLocal, BlobBackendGCS, BlobBackendCloudinary:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvBlobBackend, BlobBackendLocal, BlobBackendGCS, BlobBackendCloudinary)
	}
}

// Kind returns the normalized backend name.
func (b BlobConfig) Kind() string {
	return strings.ToLower(strings.TrimSpace(b.Backend))
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAWPASS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PAWPASS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAWPASS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"PAWPASS_GCS_BUCKET_NAME"`
}

type CloudinaryConfig struct {
	URL    string `envconfig:"PAWPASS_CLOUDINARY_URL"`
	Folder string `envconfig:"PAWPASS_CLOUDINARY_FOLDER" default:"pawpass"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"PAWPASS_PUBSUB_DOMAIN_TOPIC" default:"pawpass-domain-events"`
}

type CartConfig struct {
	TTL        time.Duration `envconfig:"PAWPASS_CART_TTL" default:"168h"`
	CookieName string        `envconfig:"PAWPASS_CART_COOKIE" default:"pawpass_cart"`
}

type VoucherConfig struct {
	ValidityMonths int `envconfig:"PAWPASS_VOUCHER_VALIDITY_MONTHS" default:"18"`
	CodeRetries    int `envconfig:"PAWPASS_VOUCHER_CODE_RETRIES" default:"5"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"PAWPASS_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type CronConfig struct {
	Schedule         string        `envconfig:"PAWPASS_CRON_SCHEDULE" default:"@every 5m"`
	LockTTL          time.Duration `envconfig:"PAWPASS_CRON_LOCK_TTL" default:"10m"`
	RetryMaxAttempts int           `envconfig:"PAWPASS_CRON_RETRY_MAX_ATTEMPTS" default:"8"`
	RetryBatchSize   int           `envconfig:"PAWPASS_CRON_RETRY_BATCH_SIZE" default:"25"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"PAWPASS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"PAWPASS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"PAWPASS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"PAWPASS_OUTBOX_RETENTION" default:"720h"`
	PruneBatchSize int           `envconfig:"PAWPASS_OUTBOX_PRUNE_BATCH_SIZE" default:"500"`
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
