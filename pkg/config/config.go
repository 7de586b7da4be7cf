package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Marketplace  MarketplaceConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string   `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"BAZAAR_CORS_ORIGINS" default:"http://localhost:3000"`
	// MetricsAddr is the listen address for /metrics in the worker binaries.
	MetricsAddr string `envconfig:"BAZAAR_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAZAAR_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAAR_DB_USER"`
	LegacyPassword string `envconfig:"BAZAAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"BAZAAR_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"BAZAAR_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	RequestIdempotencyTTL time.Duration `envconfig:"BAZAAR_EVENTING_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
	WebhookRateLimit      int64         `envconfig:"BAZAAR_EVENTING_WEBHOOK_RATE_LIMIT" default:"120"`
	WebhookRateWindow     time.Duration `envconfig:"BAZAAR_EVENTING_WEBHOOK_RATE_WINDOW" default:"1m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BAZAAR_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"BAZAAR_GOOGLE_APPLICATION_CREDENTIALS"`
	PubSubEmulatorHost     string `envconfig:"BAZAAR_PUBSUB_EMULATOR_HOST"`
}

type PubSubConfig struct {
	OrdersTopic     string `envconfig:"BAZAAR_PUBSUB_ORDERS_TOPIC" default:"bz-order-events"`
	PayoutsTopic    string `envconfig:"BAZAAR_PUBSUB_PAYOUTS_TOPIC" default:"bz-payout-events"`
	DeadLetterTopic string `envconfig:"BAZAAR_PUBSUB_DEAD_LETTER_TOPIC" default:"bz-dead-letter"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// GatewayConfig holds the payment gateway credentials. KeySecret doubles as the
// HMAC secret used to sign payment confirmations.
type GatewayConfig struct {
	BaseURL   string        `envconfig:"BAZAAR_GATEWAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	KeyID     string        `envconfig:"BAZAAR_GATEWAY_KEY_ID"`
	KeySecret string        `envconfig:"BAZAAR_GATEWAY_KEY_SECRET" required:"true"`
	Timeout   time.Duration `envconfig:"BAZAAR_GATEWAY_TIMEOUT" default:"10s"`
	Currency  string        `envconfig:"BAZAAR_GATEWAY_CURRENCY" default:"INR"`
}

// MarketplaceConfig carries the commercial constants of the platform. Amounts are in
// minor currency units.
type MarketplaceConfig struct {
	ShippingChargeCents       int64         `envconfig:"BAZAAR_SHIPPING_CHARGE_CENTS" default:"5000"`
	DefaultCommissionRate     string        `envconfig:"BAZAAR_DEFAULT_COMMISSION_RATE" default:"10"`
	FaultyReturnChargeCents   int64         `envconfig:"BAZAAR_FAULTY_RETURN_CHARGE_CENTS" default:"2000"`
	StandardReturnChargeCents int64         `envconfig:"BAZAAR_STANDARD_RETURN_CHARGE_CENTS" default:"1000"`
	ReturnEligibleStatus      string        `envconfig:"BAZAAR_RETURNS_ELIGIBLE_STATUS" default:"PAID"`
	PendingOrderTTL           time.Duration `envconfig:"BAZAAR_PENDING_ORDER_TTL" default:"72h"`
}

func (m MarketplaceConfig) validate() error {
	if m.ShippingChargeCents < 0 {
		return fmt.Errorf("%s must not be negative", EnvShippingChargeCents)
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(m.DefaultCommissionRate)); err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvDefaultCommissionRate, err)
	}
	if m.FaultyReturnChargeCents < 0 || m.StandardReturnChargeCents < 0 {
		return fmt.Errorf("return charges must not be negative")
	}
	switch strings.ToUpper(strings.TrimSpace(m.ReturnEligibleStatus)) {
	case "PAID", "DELIVERED":
	default:
		return fmt.Errorf("%s must be PAID or DELIVERED", EnvReturnsEligibleStatus)
	}
	return nil
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"15m"`
	LockTTL            time.Duration `envconfig:"BAZAAR_CRON_LOCK_TTL" default:"10m"`
	ExpiryBatchSize    int           `envconfig:"BAZAAR_CRON_EXPIRY_BATCH_SIZE" default:"100"`
	OutboxRetention    time.Duration `envconfig:"BAZAAR_OUTBOX_RETENTION" default:"720h"`
	RetentionBatchSize int           `envconfig:"BAZAAR_OUTBOX_RETENTION_BATCH_SIZE" default:"1000"`
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
