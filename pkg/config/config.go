package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "RENTAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv          = "RENTAL_APP_ENV"
	EnvPort            = "RENTAL_APP_PORT"
	EnvDBDSN           = "RENTAL_DB_DSN"
	EnvDBHost          = "RENTAL_DB_HOST"
	EnvDBUser          = "RENTAL_DB_USER"
	EnvDBName          = "RENTAL_DB_NAME"
	EnvRedisURL        = "RENTAL_REDIS_URL"
	EnvJWTSecret       = "RENTAL_JWT_SECRET"
	EnvJWTIssuer       = "RENTAL_JWT_ISSUER"
	EnvJWTExpMins      = "RENTAL_JWT_EXPIRATION_MINUTES"
	EnvBookingLockMode = "RENTAL_BOOKING_LOCK_BACKEND"
	EnvBookingTimeZone = "RENTAL_BOOKING_TIME_ZONE"
	EnvGCPProjectID    = "RENTAL_GCP_PROJECT_ID"
	EnvPubSubOrders    = "RENTAL_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Booking      BookingConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
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
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"RENTAL_APP_ENV" required:"true"`
	Port         string   `envconfig:"RENTAL_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"RENTAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"RENTAL_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"RENTAL_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RENTAL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RENTAL_DB_DSN"`
	Driver string `envconfig:"RENTAL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RENTAL_DB_HOST"`
	LegacyPort     int    `envconfig:"RENTAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RENTAL_DB_USER"`
	LegacyPassword string `envconfig:"RENTAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"RENTAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"RENTAL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RENTAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RENTAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RENTAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RENTAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"RENTAL_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RENTAL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RENTAL_REDIS_ADDR"`
	Password     string        `envconfig:"RENTAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"RENTAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RENTAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RENTAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RENTAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RENTAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RENTAL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers verification of tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"RENTAL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RENTAL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RENTAL_JWT_EXPIRATION_MINUTES" default:"60"`
}

const (
	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

// BookingConfig tunes the per-item booking lock and the unpaid booking sweep.
type BookingConfig struct {
	LockBackend      string        `envconfig:"RENTAL_BOOKING_LOCK_BACKEND" default:"redis"`
	LockTTL          time.Duration `envconfig:"RENTAL_BOOKING_LOCK_TTL" default:"10s"`
	LockWait         time.Duration `envconfig:"RENTAL_BOOKING_LOCK_WAIT" default:"3s"`
	LockPollInterval time.Duration `envconfig:"RENTAL_BOOKING_LOCK_POLL_INTERVAL" default:"50ms"`
	UnpaidTTL        time.Duration `envconfig:"RENTAL_BOOKING_UNPAID_TTL" default:"24h"`
	MaxDays          int           `envconfig:"RENTAL_BOOKING_MAX_DAYS" default:"365"`
	TimeZone         string        `envconfig:"RENTAL_BOOKING_TIME_ZONE" default:"UTC"`
}

// Location resolves the business time zone used to decide what "today" is.
func (b BookingConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(b.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func (b BookingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(b.LockBackend)) {
	case LockBackendRedis, LockBackendLocal:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvBookingLockMode, LockBackendRedis, LockBackendLocal)
	}
	if b.LockTTL <= 0 || b.LockWait <= 0 {
		return fmt.Errorf("booking lock ttl and wait must be positive")
	}
	if b.LockWait >= b.LockTTL {
		return fmt.Errorf("booking lock wait (%s) must be shorter than lock ttl (%s)", b.LockWait, b.LockTTL)
	}
	if _, err := b.Location(); err != nil {
		return fmt.Errorf("%s: %w", EnvBookingTimeZone, err)
	}
	return nil
}

type RateLimitConfig struct {
	BookingWindow  time.Duration `envconfig:"RENTAL_RATE_LIMIT_BOOKING_WINDOW" default:"1m"`
	BookingPerUser int           `envconfig:"RENTAL_RATE_LIMIT_BOOKING_PER_USER" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RENTAL_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"RENTAL_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RENTAL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RENTAL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RENTAL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic    string        `envconfig:"RENTAL_PUBSUB_ORDERS_TOPIC" default:"rental-order-events"`
	EmulatorHost   string        `envconfig:"RENTAL_PUBSUB_EMULATOR_HOST"`
	PublishDelay   time.Duration `envconfig:"RENTAL_PUBSUB_PUBLISH_DELAY" default:"10ms"`
	PublishBatches int           `envconfig:"RENTAL_PUBSUB_PUBLISH_COUNT_THRESHOLD" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RENTAL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RENTAL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RENTAL_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"RENTAL_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"RENTAL_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"RENTAL_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"RENTAL_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"RENTAL_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"RENTAL_CRON_LOCK_TTL" default:"4m"`
	JobTimeout      time.Duration `envconfig:"RENTAL_CRON_JOB_TIMEOUT" default:"2m"`
	OutboxRetention time.Duration `envconfig:"RENTAL_CRON_OUTBOX_RETENTION" default:"720h"`
	RetentionEvery  time.Duration `envconfig:"RENTAL_CRON_OUTBOX_RETENTION_EVERY" default:"6h"`
	ExpiryBatchSize int           `envconfig:"RENTAL_CRON_EXPIRY_BATCH_SIZE" default:"200"`
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
