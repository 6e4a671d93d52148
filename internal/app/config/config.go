package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"pixrecon/internal/app/service/reconciler"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"

	QueueMemory = "memory"
	QueueRedis  = "redis"
	QueueSQS    = "sqs"

	GatewayAsaas = "asaas"
	GatewayFake  = "fake"
)

type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Gateway    GatewayConfig
	Store      StoreConfig
	Queue      QueueConfig
	Reconciler ReconcilerConfig

	LogVerbose bool `env:"APP_VERBOSE,default=0"`
	LogPretty  bool `env:"APP_PRETTY,default=0"`
}

type ServerConfig struct {
	Listen       string        `env:"RUN_ADDRESS,default=localhost:8088"`
	TimeoutRead  time.Duration `env:"SERVER_TIMEOUT_READ,default=5s"`
	TimeoutWrite time.Duration `env:"SERVER_TIMEOUT_WRITE,default=10s"`
	TimeoutIdle  time.Duration `env:"SERVER_TIMEOUT_IDLE,default=1m"`
}

type AuthConfig struct {
	SecretKey     string        `env:"APP_SECRET_KEY,default=ChangeMe"`
	OperatorKey   string        `env:"APP_OPERATOR_KEY,default="`
	TokenLifetime time.Duration `env:"APP_TOKEN_LIFETIME,default=1h"`
}

type GatewayConfig struct {
	Mode   string `env:"GATEWAY_MODE,default=fake"`
	URL    string `env:"ASAAS_API_URL,default=https://sandbox.asaas.com/api/v3"`
	APIKey string `env:"ASAAS_API_KEY,default="`
	// WebhookToken is compared with the asaas-access-token header of inbound webhooks, empty disables the check
	WebhookToken string `env:"ASAAS_WEBHOOK_TOKEN,default="`
}

type StoreConfig struct {
	Driver   string `env:"STORE_DRIVER,default=memory"`
	Postgres PostgresConfig
	DynamoDB DynamoDBConfig
}

type PostgresConfig struct {
	DSN string `env:"DATABASE_URI,default="`
}

type DynamoDBConfig struct {
	Table          string `env:"DYNAMODB_TABLE,default=transactions"`
	ReferenceIndex string `env:"DYNAMODB_REFERENCE_INDEX,default=gatewayReference-index"`
	Region         string `env:"AWS_REGION,default=us-east-1"`
	Endpoint       string `env:"DYNAMODB_ENDPOINT,default="`
}

type QueueConfig struct {
	Driver     string        `env:"QUEUE_DRIVER,default=memory"`
	Visibility time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	Redis      RedisConfig
	SQS        SQSConfig
}

type RedisConfig struct {
	Addr             string `env:"REDIS_ADDR,default=localhost:6379"`
	Password         string `env:"REDIS_PASSWORD,default="`
	DB               int    `env:"REDIS_DB,default=0"`
	DepositStream    string `env:"REDIS_DEPOSIT_STREAM,default=pix:cashin"`
	WithdrawalStream string `env:"REDIS_WITHDRAWAL_STREAM,default=pix:cashout"`
	Group            string `env:"REDIS_GROUP,default=reconciler"`
	Consumer         string `env:"REDIS_CONSUMER,default="`
}

type SQSConfig struct {
	DepositURL    string `env:"SQS_DEPOSIT_QUEUE_URL,default="`
	WithdrawalURL string `env:"SQS_WITHDRAWAL_QUEUE_URL,default="`
	Region        string `env:"AWS_REGION,default=us-east-1"`
	Endpoint      string `env:"SQS_ENDPOINT,default="`
}

type ReconcilerConfig struct {
	BatchSize          int           `env:"RECON_BATCH_SIZE,default=10"`
	PollTimeout        time.Duration `env:"RECON_POLL_TIMEOUT,default=5s"`
	WorkerCount        int           `env:"RECON_WORKERS,default=2"`
	OperationTimeout   time.Duration `env:"RECON_OPERATION_TIMEOUT,default=10s"`
	NotFoundRetries    int           `env:"RECON_NOTFOUND_RETRIES,default=0"`
	NotFoundBackoff    time.Duration `env:"RECON_NOTFOUND_BACKOFF,default=500ms"`
	MaxReceiveFailures int           `env:"RECON_MAX_RECEIVE_FAILURES,default=10"`
}

// Service returns reconciler.Config built from the environment
func (c ReconcilerConfig) Service() reconciler.Config {
	return reconciler.Config{
		BatchSize:          c.BatchSize,
		PollTimeout:        c.PollTimeout,
		WorkerCount:        c.WorkerCount,
		OperationTimeout:   c.OperationTimeout,
		NotFoundRetries:    c.NotFoundRetries,
		NotFoundBackoff:    c.NotFoundBackoff,
		MaxReceiveFailures: c.MaxReceiveFailures,
	}
}

// New config constructor
func New() Config {
	return Config{}
}

// BindFlags registers command line overrides on fs
func BindFlags(fs *pflag.FlagSet) {
	fs.StringP("listen-addr", "a", "", "Server address to listen on")
	fs.StringP("database-uri", "d", "", "Database URI")
	fs.String("store", "", "Store driver: memory, postgres, dynamodb")
	fs.String("queue", "", "Queue driver: memory, redis, sqs")
	fs.String("gateway", "", "Gateway mode: asaas, fake")
	fs.Int("workers", 0, "Reconciler workers per queue")
	fs.BoolP("verbose", "v", false, "Verbose output")
	fs.BoolP("pretty", "p", false, "Pretty output")
}

// Load config from environment and from .env file (if exists) and from flags
func (cfg *Config) Load(flags *pflag.FlagSet) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".env load: %w", err)
	}

	if err := envdecode.StrictDecode(cfg); err != nil {
		return fmt.Errorf("env decode: %w", err)
	}

	if flags != nil {
		if err := cfg.applyFlags(flags); err != nil {
			return fmt.Errorf("flags: %w", err)
		}
	}

	return cfg.Validate()
}

func (cfg *Config) applyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"listen-addr":  &cfg.Server.Listen,
		"database-uri": &cfg.Store.Postgres.DSN,
		"store":        &cfg.Store.Driver,
		"queue":        &cfg.Queue.Driver,
		"gateway":      &cfg.Gateway.Mode,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	bools := map[string]*bool{
		"verbose": &cfg.LogVerbose,
		"pretty":  &cfg.LogPretty,
	}
	for name, dst := range bools {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup("workers") != nil && fs.Changed("workers") {
		v, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Reconciler.WorkerCount = v
	}

	return nil
}

// Validate driver selection and the settings each driver needs
func (cfg *Config) Validate() error {
	switch cfg.Store.Driver {
	case StoreMemory, StoreDynamoDB:
	case StorePostgres:
		if cfg.Store.Postgres.DSN == "" {
			return errors.New("postgres store requires DATABASE_URI")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	switch cfg.Queue.Driver {
	case QueueMemory, QueueRedis:
	case QueueSQS:
		if cfg.Queue.SQS.DepositURL == "" || cfg.Queue.SQS.WithdrawalURL == "" {
			return errors.New("sqs queue requires SQS_DEPOSIT_QUEUE_URL and SQS_WITHDRAWAL_QUEUE_URL")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	switch cfg.Gateway.Mode {
	case GatewayFake:
	case GatewayAsaas:
		if cfg.Gateway.APIKey == "" {
			return errors.New("asaas gateway requires ASAAS_API_KEY")
		}
	default:
		return fmt.Errorf("unknown gateway mode %q", cfg.Gateway.Mode)
	}

	if cfg.Reconciler.WorkerCount < 1 || cfg.Reconciler.BatchSize < 1 {
		return errors.New("reconciler needs at least one worker and a positive batch size")
	}

	return nil
}
