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
	Cron         CronConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREHAUS_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREHAUS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREHAUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREHAUS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREHAUS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREHAUS_DB_DSN"`
	Driver string `envconfig:"STOREHAUS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREHAUS_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREHAUS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREHAUS_DB_USER"`
	LegacyPassword string `envconfig:"STOREHAUS_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREHAUS_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREHAUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREHAUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREHAUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREHAUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREHAUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREHAUS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREHAUS_REDIS_ADDR"`
	Password     string        `envconfig:"STOREHAUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREHAUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREHAUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREHAUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREHAUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREHAUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREHAUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CronConfig struct {
	Interval     time.Duration `envconfig:"STOREHAUS_CRON_INTERVAL" default:"60s"`
	LockTTL      time.Duration `envconfig:"STOREHAUS_CRON_LOCK_TTL" default:"5m"`
	SweepRetries int           `envconfig:"STOREHAUS_CRON_SWEEP_RETRIES" default:"3"`
	SweepBackoff time.Duration `envconfig:"STOREHAUS_CRON_SWEEP_BACKOFF" default:"250ms"`
}

type CheckoutConfig struct {
	ReservationTTL time.Duration `envconfig:"STOREHAUS_CHECKOUT_RESERVATION_TTL" default:"15m"`
	OrderTaxRate   string        `envconfig:"STOREHAUS_CHECKOUT_ORDER_TAX_RATE" default:"0.21"`
	ShippingAmount string        `envconfig:"STOREHAUS_CHECKOUT_SHIPPING_AMOUNT" default:"5.99"`
}

type RateLimitConfig struct {
	Limit  int64         `envconfig:"STOREHAUS_API_RATE_LIMIT" default:"120"`
	Window time.Duration `envconfig:"STOREHAUS_API_RATE_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREHAUS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREHAUS_AUTO_MIGRATE" default:"false"`
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
