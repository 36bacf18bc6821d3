package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	NotifierSMTP = "smtp"
	NotifierLog  = "log"
)

type DBConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD"`
	Name            string        `env:"DB_NAME" envDefault:"identity"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"50"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"10"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
}

// DSN prefers DATABASE_URL and otherwise assembles one from the DB_* parts.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type JWTConfig struct {
	PrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH"`
	Issuer         string        `env:"JWT_ISSUER" envDefault:"identity-service"`
	Audience       string        `env:"JWT_AUDIENCE" envDefault:"identity-clients"`
	KeyID          string        `env:"JWT_KEY_ID" envDefault:"identity-1"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

type SMTPConfig struct {
	Host        string        `env:"SMTP_HOST" envDefault:"localhost"`
	Port        int           `env:"SMTP_PORT" envDefault:"587"`
	Username    string        `env:"SMTP_USERNAME"`
	Password    string        `env:"SMTP_PASSWORD"`
	From        string        `env:"MAIL_FROM" envDefault:"no-reply@localhost"`
	Timeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	MaxAttempts uint          `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
}

type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"identity-service"`
	AppName     string `env:"APP_NAME" envDefault:"Identity"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8001"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":8006"`

	StoreDriver  string `env:"STORE_DRIVER" envDefault:"postgres"`
	DB           DBConfig
	SQLitePath   string   `env:"SQLITE_PATH" envDefault:"identity.db"`
	RedisAddrs   []string `env:"REDIS_ADDR" envSeparator:","`
	RedisPass    string   `env:"REDIS_PASS"`
	RedisCluster bool     `env:"REDIS_CLUSTER"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"identity.account.events"`

	JWT JWTConfig

	OTPTTL          time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPResendPolicy string        `env:"OTP_RESEND_POLICY" envDefault:"rollback"`
	NotifierDriver  string        `env:"NOTIFIER_DRIVER" envDefault:"smtp"`
	SMTP            SMTPConfig

	GoogleClientID  string `env:"GOOGLE_CLIENT_ID"`
	BcryptCost      int    `env:"BCRYPT_COST" envDefault:"10"`
	HashConcurrency int    `env:"HASH_CONCURRENCY" envDefault:"8"`
	SnowflakeNode   int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`

	OTELEndpoint string   `env:"OTEL_ENDPOINT"`
	LogLevel     string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string   `env:"LOG_FORMAT" envDefault:"json"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads an optional .env file and then the process environment.
func Load() (AppConfig, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (AppConfig, error) {
	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver))
	}
	switch c.NotifierDriver {
	case NotifierSMTP, NotifierLog:
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER_DRIVER must be %q or %q, got %q", NotifierSMTP, NotifierLog, c.NotifierDriver))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.JWT.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.HashConcurrency < 1 {
		errs = append(errs, errors.New("HASH_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}
