package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is passed to envconfig when processing the configuration.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Delivery     DeliveryConfig
	Geocoding    GeocodingConfig
	Stripe       StripeConfig
	Razorpay     RazorpayConfig
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
	Env          string `envconfig:"FRESHKART_APP_ENV" required:"true"`
	Port         string `envconfig:"FRESHKART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FRESHKART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FRESHKART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FRESHKART_DB_DSN"`
	Driver string `envconfig:"FRESHKART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FRESHKART_DB_HOST"`
	LegacyPort     int    `envconfig:"FRESHKART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FRESHKART_DB_USER"`
	LegacyPassword string `envconfig:"FRESHKART_DB_PASSWORD"`
	LegacyName     string `envconfig:"FRESHKART_DB_NAME"`
	LegacySSLMode  string `envconfig:"FRESHKART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRESHKART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRESHKART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRESHKART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRESHKART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FRESHKART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FRESHKART_REDIS_ADDR"`
	Password     string        `envconfig:"FRESHKART_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRESHKART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRESHKART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRESHKART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRESHKART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRESHKART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRESHKART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FRESHKART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FRESHKART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FRESHKART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// DeliveryConfig carries the fee schedule and the store origin coordinates.
type DeliveryConfig struct {
	RatePerKM             int     `envconfig:"FRESHKART_DELIVERY_RATE_PER_KM" default:"5"`
	MinimumFee            int     `envconfig:"FRESHKART_DELIVERY_MINIMUM_FEE" default:"20"`
	MaximumFee            int     `envconfig:"FRESHKART_DELIVERY_MAXIMUM_FEE" default:"100"`
	FreeDeliveryThreshold int     `envconfig:"FRESHKART_DELIVERY_FREE_THRESHOLD" default:"500"`
	StoreLat              float64 `envconfig:"FRESHKART_DELIVERY_STORE_LAT" default:"19.0760"`
	StoreLng              float64 `envconfig:"FRESHKART_DELIVERY_STORE_LNG" default:"72.8777"`
}

type GeocodingConfig struct {
	APIKey  string        `envconfig:"FRESHKART_GEOCODING_API_KEY"`
	Timeout time.Duration `envconfig:"FRESHKART_GEOCODING_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	WebhookSecret string `envconfig:"FRESHKART_STRIPE_WEBHOOK_SECRET"`
}

type RazorpayConfig struct {
	WebhookSecret string `envconfig:"FRESHKART_RAZORPAY_WEBHOOK_SECRET"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FRESHKART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FRESHKART_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"FRESHKART_DB_HOST": db.LegacyHost,
		"FRESHKART_DB_USER": db.LegacyUser,
		"FRESHKART_DB_NAME": db.LegacyName,
	}
	for _, env := range []string{"FRESHKART_DB_HOST", "FRESHKART_DB_USER", "FRESHKART_DB_NAME"} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either FRESHKART_DB_DSN or %s are required", strings.Join(missing, ", "))
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
