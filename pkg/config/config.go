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

	EnvDBDSN  = "NEGOTIATOR_DB_DSN"
	EnvDBHost = "NEGOTIATOR_DB_HOST"
	EnvDBUser = "NEGOTIATOR_DB_USER"
	EnvDBName = "NEGOTIATOR_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	LLM          LLMConfig
	Negotiation  NegotiationConfig
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
	if err := cfg.Negotiation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NEGOTIATOR_APP_ENV" required:"true"`
	Port         string `envconfig:"NEGOTIATOR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NEGOTIATOR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NEGOTIATOR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"NEGOTIATOR_DB_DSN"`
	Driver string `envconfig:"NEGOTIATOR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NEGOTIATOR_DB_HOST"`
	LegacyPort     int    `envconfig:"NEGOTIATOR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NEGOTIATOR_DB_USER"`
	LegacyPassword string `envconfig:"NEGOTIATOR_DB_PASSWORD"`
	LegacyName     string `envconfig:"NEGOTIATOR_DB_NAME"`
	LegacySSLMode  string `envconfig:"NEGOTIATOR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEGOTIATOR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEGOTIATOR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEGOTIATOR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEGOTIATOR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NEGOTIATOR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NEGOTIATOR_REDIS_ADDR"`
	Password     string        `envconfig:"NEGOTIATOR_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEGOTIATOR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEGOTIATOR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEGOTIATOR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEGOTIATOR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEGOTIATOR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEGOTIATOR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NEGOTIATOR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NEGOTIATOR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NEGOTIATOR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NEGOTIATOR_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NEGOTIATOR_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"NEGOTIATOR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NEGOTIATOR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NegotiationTopic        string `envconfig:"NEGOTIATOR_PUBSUB_NEGOTIATION_TOPIC" required:"true"`
	NegotiationSubscription string `envconfig:"NEGOTIATOR_PUBSUB_NEGOTIATION_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"NEGOTIATOR_BIGQUERY_DATASET" default:"negotiator"`
	UsageTable      string `envconfig:"NEGOTIATOR_BIGQUERY_USAGE_TABLE" default:"llm_usage"`
	RoundFactsTable string `envconfig:"NEGOTIATOR_BIGQUERY_ROUND_FACTS_TABLE" default:"round_facts"`
}

type LLMConfig struct {
	APIKey         string        `envconfig:"NEGOTIATOR_LLM_API_KEY"`
	BaseURL        string        `envconfig:"NEGOTIATOR_LLM_BASE_URL" default:"https://api.openai.com/v1"`
	Model          string        `envconfig:"NEGOTIATOR_LLM_MODEL" default:"gpt-4o-mini"`
	RequestTimeout time.Duration `envconfig:"NEGOTIATOR_LLM_REQUEST_TIMEOUT" default:"45s"`
}

// NegotiationConfig carries the tunables of the round pipeline. The price-band
// multipliers bound plausible offer totals per declared price level; they are
// configuration, not constants, because procurement teams tune them per
// category.
type NegotiationConfig struct {
	MaxRounds                int     `envconfig:"NEGOTIATOR_MAX_ROUNDS" default:"3"`
	MaxConcurrentExtractions int64   `envconfig:"NEGOTIATOR_MAX_CONCURRENT_EXTRACTIONS" default:"4"`
	AnnualCapitalRate        float64 `envconfig:"NEGOTIATOR_ANNUAL_CAPITAL_RATE" default:"0.08"`
	DefaultScoringMode       string  `envconfig:"NEGOTIATOR_DEFAULT_SCORING_MODE" default:"balanced"`

	BandCheapestLow   float64 `envconfig:"NEGOTIATOR_BAND_CHEAPEST_LOW" default:"0.70"`
	BandCheapestHigh  float64 `envconfig:"NEGOTIATOR_BAND_CHEAPEST_HIGH" default:"0.95"`
	BandMidLow        float64 `envconfig:"NEGOTIATOR_BAND_MID_LOW" default:"0.85"`
	BandMidHigh       float64 `envconfig:"NEGOTIATOR_BAND_MID_HIGH" default:"1.10"`
	BandExpensiveLow  float64 `envconfig:"NEGOTIATOR_BAND_EXPENSIVE_LOW" default:"1.00"`
	BandExpensiveHigh float64 `envconfig:"NEGOTIATOR_BAND_EXPENSIVE_HIGH" default:"1.35"`

	SnapshotRetryAttempts uint64        `envconfig:"NEGOTIATOR_SNAPSHOT_RETRY_ATTEMPTS" default:"3"`
	SnapshotRetryBackoff  time.Duration `envconfig:"NEGOTIATOR_SNAPSHOT_RETRY_BACKOFF" default:"2s"`
}

func (n NegotiationConfig) validate() error {
	bands := [][2]float64{
		{n.BandCheapestLow, n.BandCheapestHigh},
		{n.BandMidLow, n.BandMidHigh},
		{n.BandExpensiveLow, n.BandExpensiveHigh},
	}
	for _, band := range bands {
		if band[0] <= 0 || band[1] <= 0 || band[0] > band[1] {
			return fmt.Errorf("invalid price band [%v, %v]", band[0], band[1])
		}
	}
	if n.MaxRounds <= 0 {
		return fmt.Errorf("max rounds must be positive")
	}
	if n.MaxConcurrentExtractions <= 0 {
		return fmt.Errorf("max concurrent extractions must be positive")
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"NEGOTIATOR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"NEGOTIATOR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"NEGOTIATOR_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"NEGOTIATOR_OUTBOX_IDEMPOTENCY_TTL" default:"24h"`
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
