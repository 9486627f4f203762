package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AFFIRMGW_DB_DSN"
	EnvDBHost = "AFFIRMGW_DB_HOST"
	EnvDBUser = "AFFIRMGW_DB_USER"
	EnvDBName = "AFFIRMGW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Affirm       AffirmConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Affirm.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AFFIRMGW_APP_ENV" required:"true"`
	Port         string `envconfig:"AFFIRMGW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AFFIRMGW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AFFIRMGW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AFFIRMGW_DB_DSN"`
	Driver string `envconfig:"AFFIRMGW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AFFIRMGW_DB_HOST"`
	LegacyPort     int    `envconfig:"AFFIRMGW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AFFIRMGW_DB_USER"`
	LegacyPassword string `envconfig:"AFFIRMGW_DB_PASSWORD"`
	LegacyName     string `envconfig:"AFFIRMGW_DB_NAME"`
	LegacySSLMode  string `envconfig:"AFFIRMGW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AFFIRMGW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AFFIRMGW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AFFIRMGW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AFFIRMGW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AFFIRMGW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AFFIRMGW_REDIS_ADDR"`
	Password     string        `envconfig:"AFFIRMGW_REDIS_PASSWORD"`
	DB           int           `envconfig:"AFFIRMGW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AFFIRMGW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AFFIRMGW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AFFIRMGW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AFFIRMGW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AFFIRMGW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AffirmConfig carries the merchant credentials plus the gateway behavior
// toggles that used to live in the payment-gateway settings screen.
type AffirmConfig struct {
	PublicKey       string `envconfig:"AFFIRMGW_AFFIRM_PUBLIC_KEY" required:"true"`
	PrivateKey      string `envconfig:"AFFIRMGW_AFFIRM_PRIVATE_KEY" required:"true"`
	Sandbox         bool   `envconfig:"AFFIRMGW_AFFIRM_SANDBOX" default:"true"`
	TransactionMode string `envconfig:"AFFIRMGW_AFFIRM_TRANSACTION_MODE" default:"capture"`

	OrderMinimum string `envconfig:"AFFIRMGW_AFFIRM_ORDER_MIN" default:"50"`
	OrderMaximum string `envconfig:"AFFIRMGW_AFFIRM_ORDER_MAX" default:"30000"`
}

// AuthOnly reports whether the gateway defers capture to a manual step.
func (a AffirmConfig) AuthOnly() bool {
	return strings.EqualFold(strings.TrimSpace(a.TransactionMode), "auth_only")
}

func (a AffirmConfig) validate() error {
	pub := strings.TrimSpace(a.PublicKey)
	priv := strings.TrimSpace(a.PrivateKey)
	if pub == "" || priv == "" {
		return fmt.Errorf("affirm public and private keys are required")
	}
	if pub == priv {
		return fmt.Errorf("affirm public and private keys must differ")
	}
	switch strings.ToLower(strings.TrimSpace(a.TransactionMode)) {
	case "capture", "auth_only":
		return nil
	default:
		return fmt.Errorf("affirm transaction mode must be %q or %q", "capture", "auth_only")
	}
}

// CheckoutConfig holds the host-storefront URLs embedded in the checkout
// object handed to Affirm's widget.
type CheckoutConfig struct {
	ConfirmationURL string `envconfig:"AFFIRMGW_CHECKOUT_CONFIRMATION_URL" required:"true"`
	CancelURL       string `envconfig:"AFFIRMGW_CHECKOUT_CANCEL_URL" required:"true"`
	PlatformName    string `envconfig:"AFFIRMGW_CHECKOUT_PLATFORM_NAME" default:"affirm-gateway"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AFFIRMGW_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AFFIRMGW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"AFFIRMGW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AFFIRMGW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ChargeEventsTopic        string `envconfig:"AFFIRMGW_PUBSUB_CHARGE_EVENTS_TOPIC" default:"affirm-charge-events"`
	ChargeEventsSubscription string `envconfig:"AFFIRMGW_PUBSUB_CHARGE_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AFFIRMGW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AFFIRMGW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AFFIRMGW_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
