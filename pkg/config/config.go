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
	Gateway      GatewayConfig
	Settlement   SettlementConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ROYALTYOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"ROYALTYOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ROYALTYOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ROYALTYOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ROYALTYOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ROYALTYOPS_DB_DSN"`
	Driver string `envconfig:"ROYALTYOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ROYALTYOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"ROYALTYOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROYALTYOPS_DB_USER"`
	LegacyPassword string `envconfig:"ROYALTYOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROYALTYOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROYALTYOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROYALTYOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROYALTYOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROYALTYOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROYALTYOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ROYALTYOPS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ROYALTYOPS_REDIS_ADDR"`
	Password     string        `envconfig:"ROYALTYOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROYALTYOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROYALTYOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROYALTYOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROYALTYOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROYALTYOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ROYALTYOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig holds the outbound transfer gateway credentials.
type GatewayConfig struct {
	APIKey  string        `envconfig:"ROYALTYOPS_GATEWAY_API_KEY"`
	BaseURL string        `envconfig:"ROYALTYOPS_GATEWAY_BASE_URL" default:"https://api.transfergateway.example.com"`
	Env     string        `envconfig:"ROYALTYOPS_GATEWAY_ENV" default:"test"`
	Timeout time.Duration `envconfig:"ROYALTYOPS_GATEWAY_TIMEOUT" default:"15s"`
}

// Environment returns the normalized gateway environment (test/live).
func (g GatewayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "test"
	}
	return env
}

// SettlementConfig bounds the gateway calls made while settling payouts.
type SettlementConfig struct {
	GatewayMaxAttempts int           `envconfig:"ROYALTYOPS_SETTLEMENT_GATEWAY_MAX_ATTEMPTS" default:"3"`
	GatewayRetryDelay  time.Duration `envconfig:"ROYALTYOPS_SETTLEMENT_GATEWAY_RETRY_DELAY" default:"500ms"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ROYALTYOPS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ROYALTYOPS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ROYALTYOPS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ROYALTYOPS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ROYALTYOPS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"ROYALTYOPS_PUBSUB_DOMAIN_TOPIC" default:"royaltyops-domain-events"`
	DomainSubscription string `envconfig:"ROYALTYOPS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ROYALTYOPS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ROYALTYOPS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ROYALTYOPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
