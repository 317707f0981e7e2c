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
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Identity     IdentityConfig
	FeatureFlags FeatureFlagsConfig
	Kakao        KakaoPayConfig
	Toss         TossPayConfig
	Naver        NaverPayConfig
	Tracking     TrackingConfig
	Providers    ProvidersConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMCART_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMCART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FARMCART_DB_DSN"`
	Driver string `envconfig:"FARMCART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FARMCART_DB_HOST"`
	Port     int    `envconfig:"FARMCART_DB_PORT" default:"5432"`
	User     string `envconfig:"FARMCART_DB_USER"`
	Password string `envconfig:"FARMCART_DB_PASSWORD"`
	Name     string `envconfig:"FARMCART_DB_NAME"`
	SSLMode  string `envconfig:"FARMCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMCART_REDIS_ADDR"`
	Password     string        `envconfig:"FARMCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// IdentityConfig feeds the token resolver that maps caller tokens to user ids.
type IdentityConfig struct {
	JWTSecret string `envconfig:"FARMCART_IDENTITY_JWT_SECRET" required:"true"`
	Issuer    string `envconfig:"FARMCART_IDENTITY_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FARMCART_AUTO_MIGRATE" default:"false"`
}

type KakaoPayConfig struct {
	AdminKey string `envconfig:"FARMCART_KAKAOPAY_ADMIN_KEY"`
	CID      string `envconfig:"FARMCART_KAKAOPAY_CID" default:"TC0ONETIME"`
	BaseURL  string `envconfig:"FARMCART_KAKAOPAY_BASE_URL" default:"https://kapi.kakao.com"`
}

type TossPayConfig struct {
	SecretKey string `envconfig:"FARMCART_TOSSPAY_SECRET_KEY"`
	BaseURL   string `envconfig:"FARMCART_TOSSPAY_BASE_URL" default:"https://api.tosspayments.com"`
}

type NaverPayConfig struct {
	ClientID     string `envconfig:"FARMCART_NAVERPAY_CLIENT_ID"`
	ClientSecret string `envconfig:"FARMCART_NAVERPAY_CLIENT_SECRET"`
	ChainID      string `envconfig:"FARMCART_NAVERPAY_CHAIN_ID"`
	PartnerID    string `envconfig:"FARMCART_NAVERPAY_PARTNER_ID"`
	BaseURL      string `envconfig:"FARMCART_NAVERPAY_BASE_URL" default:"https://apis.naver.com"`
}

type TrackingConfig struct {
	APIKey  string `envconfig:"FARMCART_TRACKING_API_KEY"`
	BaseURL string `envconfig:"FARMCART_TRACKING_BASE_URL" default:"https://info.sweettracker.co.kr"`
}

// ProvidersConfig bounds every outbound provider call.
type ProvidersConfig struct {
	HTTPTimeout time.Duration `envconfig:"FARMCART_PROVIDER_HTTP_TIMEOUT" default:"10s"`
	// ReturnBaseURL prefixes the approve/cancel/fail URLs handed to the
	// payment gateways.
	ReturnBaseURL string `envconfig:"FARMCART_PROVIDER_RETURN_BASE_URL" default:"http://localhost:8080"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMCART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMCART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMCART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"FARMCART_PUBSUB_NOTIFICATION_TOPIC" default:"fc-notification-events"`
	NotificationSubscription string `envconfig:"FARMCART_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for envName, value := range map[string]string{
		"FARMCART_DB_HOST": db.Host,
		"FARMCART_DB_USER": db.User,
		"FARMCART_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, envName)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either FARMCART_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
