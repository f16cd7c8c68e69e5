package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

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
	Store        StoreConfig
	Checkout     CheckoutConfig
	Loyalty      LoyaltyConfig
	Outbox       OutboxConfig
	Worker       WorkerConfig
	PubSub       PubSubConfig
	Eventing     EventingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Store.Location(); err != nil {
		return nil, err
	}
	if err := cfg.Store.checkPrefix(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PASTRYPICKUP_APP_ENV" required:"true"`
	Port         string   `envconfig:"PASTRYPICKUP_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"PASTRYPICKUP_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PASTRYPICKUP_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"PASTRYPICKUP_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"PASTRYPICKUP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PASTRYPICKUP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PASTRYPICKUP_DB_DSN"`
	Driver string `envconfig:"PASTRYPICKUP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PASTRYPICKUP_DB_HOST"`
	LegacyPort     int    `envconfig:"PASTRYPICKUP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PASTRYPICKUP_DB_USER"`
	LegacyPassword string `envconfig:"PASTRYPICKUP_DB_PASSWORD"`
	LegacyName     string `envconfig:"PASTRYPICKUP_DB_NAME"`
	LegacySSLMode  string `envconfig:"PASTRYPICKUP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PASTRYPICKUP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PASTRYPICKUP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PASTRYPICKUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PASTRYPICKUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PASTRYPICKUP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PASTRYPICKUP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PASTRYPICKUP_REDIS_ADDR"`
	Password     string        `envconfig:"PASTRYPICKUP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PASTRYPICKUP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PASTRYPICKUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PASTRYPICKUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PASTRYPICKUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PASTRYPICKUP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PASTRYPICKUP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PASTRYPICKUP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PASTRYPICKUP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PASTRYPICKUP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PASTRYPICKUP_AUTO_MIGRATE" default:"false"`
}

// StoreConfig describes the physical shop the orders are picked up from.
type StoreConfig struct {
	Timezone          string `envconfig:"PASTRYPICKUP_STORE_TIMEZONE" default:"America/Santiago"`
	OrderNumberPrefix string `envconfig:"PASTRYPICKUP_ORDER_NUMBER_PREFIX" default:"PP"`
}

// Location resolves the configured store timezone.
func (s StoreConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvStoreTimezone, name, err)
	}
	return loc, nil
}

// Order numbers are looked up by shape, so the prefix must be two
// uppercase letters.
func (s StoreConfig) checkPrefix() error {
	p := s.OrderNumberPrefix
	if len(p) != 2 || p[0] < 'A' || p[0] > 'Z' || p[1] < 'A' || p[1] > 'Z' {
		return fmt.Errorf("invalid %s %q: want two uppercase letters", EnvOrderPrefix, p)
	}
	return nil
}

type CheckoutConfig struct {
	OrderNumberAttempts int           `envconfig:"PASTRYPICKUP_ORDER_NUMBER_ATTEMPTS" default:"10"`
	StockHoldTTL        time.Duration `envconfig:"PASTRYPICKUP_STOCK_HOLD_TTL" default:"15m"`
	RateLimitWindow     time.Duration `envconfig:"PASTRYPICKUP_CHECKOUT_RATE_LIMIT_WINDOW" default:"10m"`
	RateLimitPerIP      int           `envconfig:"PASTRYPICKUP_CHECKOUT_RATE_LIMIT_IP" default:"30"`
	RateLimitPerEmail   int           `envconfig:"PASTRYPICKUP_CHECKOUT_RATE_LIMIT_EMAIL" default:"10"`
}

// LoyaltyConfig carries the tier boundaries and multipliers. Bounds are the
// inclusive lower limits of SILVER, GOLD and VIP; BRONZE always starts at 0.
type LoyaltyConfig struct {
	PointsDivisor      int64  `envconfig:"PASTRYPICKUP_LOYALTY_POINTS_DIVISOR" default:"100"`
	RedemptionRate     int64  `envconfig:"PASTRYPICKUP_LOYALTY_REDEMPTION_RATE" default:"100"`
	SilverFrom         int64  `envconfig:"PASTRYPICKUP_LOYALTY_SILVER_FROM" default:"1000"`
	GoldFrom           int64  `envconfig:"PASTRYPICKUP_LOYALTY_GOLD_FROM" default:"5000"`
	VIPFrom            int64  `envconfig:"PASTRYPICKUP_LOYALTY_VIP_FROM" default:"100000"`
	BronzeMultiplier   string `envconfig:"PASTRYPICKUP_LOYALTY_BRONZE_MULTIPLIER" default:"1.0"`
	SilverMultiplier   string `envconfig:"PASTRYPICKUP_LOYALTY_SILVER_MULTIPLIER" default:"1.2"`
	GoldMultiplier     string `envconfig:"PASTRYPICKUP_LOYALTY_GOLD_MULTIPLIER" default:"1.5"`
	VIPMultiplier      string `envconfig:"PASTRYPICKUP_LOYALTY_VIP_MULTIPLIER" default:"2.0"`
	ReconcileBatchSize int    `envconfig:"PASTRYPICKUP_LOYALTY_RECONCILE_BATCH_SIZE" default:"200"`
}

// TierBound is one configured row of the tier table.
type TierBound struct {
	Level      string
	MinPoints  int64
	Multiplier decimal.Decimal
}

// TierBounds parses the configured multipliers into ordered tier rows.
func (l LoyaltyConfig) TierBounds() ([]TierBound, error) {
	raw := []struct {
		level string
		min   int64
		mult  string
	}{
		{"BRONZE", 0, l.BronzeMultiplier},
		{"SILVER", l.SilverFrom, l.SilverMultiplier},
		{"GOLD", l.GoldFrom, l.GoldMultiplier},
		{"VIP", l.VIPFrom, l.VIPMultiplier},
	}
	out := make([]TierBound, 0, len(raw))
	for _, r := range raw {
		mult, err := decimal.NewFromString(strings.TrimSpace(r.mult))
		if err != nil {
			return nil, fmt.Errorf("invalid %s multiplier %q: %w", r.level, r.mult, err)
		}
		out = append(out, TierBound{Level: r.level, MinPoints: r.min, Multiplier: mult})
	}
	return out, nil
}

type OutboxConfig struct {
	BatchSize   int           `envconfig:"PASTRYPICKUP_OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts int           `envconfig:"PASTRYPICKUP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention   time.Duration `envconfig:"PASTRYPICKUP_OUTBOX_RETENTION" default:"720h"`
}

type WorkerConfig struct {
	Interval      time.Duration `envconfig:"PASTRYPICKUP_WORKER_INTERVAL" default:"5s"`
	LockTTL       time.Duration `envconfig:"PASTRYPICKUP_WORKER_LOCK_TTL" default:"1m"`
	ReconcileEach time.Duration `envconfig:"PASTRYPICKUP_WORKER_RECONCILE_EVERY" default:"1h"`
	ReconcileHeal bool          `envconfig:"PASTRYPICKUP_WORKER_RECONCILE_HEAL" default:"false"`
	RetentionEach time.Duration `envconfig:"PASTRYPICKUP_WORKER_RETENTION_EVERY" default:"24h"`
}

// PubSubConfig is optional: with no project configured the notification
// dispatcher only logs.
type PubSubConfig struct {
	ProjectID     string `envconfig:"PASTRYPICKUP_GCP_PROJECT_ID"`
	EmailTopic    string `envconfig:"PASTRYPICKUP_PUBSUB_EMAIL_TOPIC" default:"pp-order-email"`
	WhatsAppTopic string `envconfig:"PASTRYPICKUP_PUBSUB_WHATSAPP_TOPIC" default:"pp-order-whatsapp"`
}

func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ProjectID) != ""
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PASTRYPICKUP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
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
