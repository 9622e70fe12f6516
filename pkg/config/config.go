package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GoogleMaps   GoogleMapsConfig
	PayOS        PayOSConfig
	Shipping     ShippingConfig
	Checkout     CheckoutConfig
	Payments     PaymentsConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VOLTRIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"VOLTRIDE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VOLTRIDE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VOLTRIDE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"VOLTRIDE_LOG_WARN_STACK" default:"false"`

	AllowedOrigins []string `envconfig:"VOLTRIDE_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VOLTRIDE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOLTRIDE_DB_DSN"`
	Driver string `envconfig:"VOLTRIDE_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"VOLTRIDE_SQLITE_PATH" default:"voltride.db"`

	LegacyHost     string `envconfig:"VOLTRIDE_DB_HOST"`
	LegacyPort     int    `envconfig:"VOLTRIDE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VOLTRIDE_DB_USER"`
	LegacyPassword string `envconfig:"VOLTRIDE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VOLTRIDE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VOLTRIDE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOLTRIDE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOLTRIDE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOLTRIDE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOLTRIDE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOLTRIDE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VOLTRIDE_REDIS_ADDR"`
	Password     string        `envconfig:"VOLTRIDE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOLTRIDE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOLTRIDE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOLTRIDE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOLTRIDE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOLTRIDE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOLTRIDE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VOLTRIDE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VOLTRIDE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VOLTRIDE_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite           bool `envconfig:"VOLTRIDE_USE_SQLITE" default:"false"`
	AutoMigrate         bool `envconfig:"VOLTRIDE_AUTO_MIGRATE" default:"false"`
	AllowSandboxWebhook bool `envconfig:"VOLTRIDE_ALLOW_SANDBOX_WEBHOOK" default:"false"`
}

type GoogleMapsConfig struct {
	APIKey         string        `envconfig:"VOLTRIDE_GOOGLE_MAPS_API_KEY"`
	Region         string        `envconfig:"VOLTRIDE_GOOGLE_MAPS_REGION" default:"vn"`
	GeocodeTimeout time.Duration `envconfig:"VOLTRIDE_GEOCODE_TIMEOUT" default:"5s"`
}

type PayOSConfig struct {
	BaseURL     string        `envconfig:"VOLTRIDE_PAYOS_BASE_URL" default:"https://api-merchant.payos.vn"`
	ClientID    string        `envconfig:"VOLTRIDE_PAYOS_CLIENT_ID"`
	APIKey      string        `envconfig:"VOLTRIDE_PAYOS_API_KEY"`
	ChecksumKey string        `envconfig:"VOLTRIDE_PAYOS_CHECKSUM_KEY"`
	ReturnURL   string        `envconfig:"VOLTRIDE_PAYOS_RETURN_URL" default:"https://payos-payment-success.com/"`
	CancelURL   string        `envconfig:"VOLTRIDE_PAYOS_CANCEL_URL" default:"https://payos-payment-success.com/"`
	MinAmount   int64         `envconfig:"VOLTRIDE_PAYOS_MIN_AMOUNT" default:"1000"`
	Timeout     time.Duration `envconfig:"VOLTRIDE_PAYOS_TIMEOUT" default:"15s"`
}

// Enabled reports whether gateway credentials are present.
func (p PayOSConfig) Enabled() bool {
	return p.ClientID != "" && p.APIKey != "" && p.ChecksumKey != ""
}

type ShippingConfig struct {
	FeePerKm        int64 `envconfig:"VOLTRIDE_SHIPPING_FEE_PER_KM" default:"5000"`
	MinFee          int64 `envconfig:"VOLTRIDE_SHIPPING_MIN_FEE" default:"0"`
	RoundDistanceUp bool  `envconfig:"VOLTRIDE_SHIPPING_ROUND_DISTANCE_UP" default:"true"`
}

type CheckoutConfig struct {
	AutoCreatePaymentLinks bool          `envconfig:"VOLTRIDE_CHECKOUT_AUTO_PAYMENT_LINKS" default:"false"`
	IdempotencyTTL         time.Duration `envconfig:"VOLTRIDE_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	RateLimitWindow        time.Duration `envconfig:"VOLTRIDE_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP         int           `envconfig:"VOLTRIDE_CHECKOUT_RATE_LIMIT_PER_IP" default:"30"`
	RateLimitPerUser       int           `envconfig:"VOLTRIDE_CHECKOUT_RATE_LIMIT_PER_USER" default:"10"`
}

type PaymentsConfig struct {
	ExpiryAfter     time.Duration `envconfig:"VOLTRIDE_PAYMENTS_EXPIRY" default:"24h"`
	PaidOrderStatus string        `envconfig:"VOLTRIDE_PAYMENTS_PAID_ORDER_STATUS" default:"pending"`
	WebhookGuardTTL time.Duration `envconfig:"VOLTRIDE_PAYMENTS_WEBHOOK_GUARD_TTL" default:"720h"`
}

func (p PaymentsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.PaidOrderStatus)) {
	case "pending", "confirmed":
		return nil
	default:
		return fmt.Errorf("%s must be pending or confirmed", EnvPaidOrderStatus)
	}
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"VOLTRIDE_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"VOLTRIDE_CRON_LOCK_TTL" default:"10m"`
	OutboxRetention time.Duration `envconfig:"VOLTRIDE_OUTBOX_RETENTION" default:"720h"`
	// MetricsAddr serves the sweep series on /metrics when set, e.g. ":9102".
	MetricsAddr string `envconfig:"VOLTRIDE_CRON_METRICS_ADDR"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VOLTRIDE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VOLTRIDE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VOLTRIDE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"VOLTRIDE_PUBSUB_ORDERS_TOPIC" default:"voltride-order-events"`
	PaymentsTopic string `envconfig:"VOLTRIDE_PUBSUB_PAYMENTS_TOPIC" default:"voltride-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VOLTRIDE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VOLTRIDE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VOLTRIDE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
		return nil
	}
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
