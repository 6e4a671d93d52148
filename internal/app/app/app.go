package app

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/rs/xid"

	"pixrecon/internal/app/config"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/queue"
	memqueue "pixrecon/internal/app/queue/memory"
	"pixrecon/internal/app/queue/redisq"
	"pixrecon/internal/app/queue/sqsq"
	"pixrecon/internal/app/service/pix"
	"pixrecon/internal/app/service/reconciler"
	"pixrecon/internal/app/session"
	"pixrecon/internal/app/storage"
	"pixrecon/internal/app/storage/dynamo"
	"pixrecon/internal/app/storage/memory"
	"pixrecon/internal/app/storage/postgres"
	"pixrecon/pkg/asaas"
)

type App struct {
	config      config.Config
	logger      logger.Logger
	store       storage.TransactionRepository
	deposits    queue.Queue
	withdrawals queue.Queue
	gateway     asaas.Gateway
	session     session.Manager
	pix         *pix.Service
	closers     []func() error
}

// New builds every collaborator selected by cfg. Migrations are applied when the
// postgres store is used.
func New(ctx context.Context, cfg config.Config, l logger.Logger, migrations fs.FS) (*App, error) {
	a := &App{
		config: cfg,
		logger: l,
	}

	if err := a.initStore(ctx, migrations); err != nil {
		a.Close()
		return nil, fmt.Errorf("store init: %w", err)
	}

	if err := a.initQueues(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("queue init: %w", err)
	}

	if err := a.initGateway(); err != nil {
		a.Close()
		return nil, fmt.Errorf("gateway init: %w", err)
	}

	a.session = session.NewJWT(cfg.Auth.SecretKey, session.WithTokenLifetime(cfg.Auth.TokenLifetime))
	a.pix = pix.New(a.gateway, a.store)

	l.Info().
		Str("store", cfg.Store.Driver).
		Str("queue", cfg.Queue.Driver).
		Str("gateway", cfg.Gateway.Mode).
		Msg("Application initialized")

	return a, nil
}

func (a *App) initStore(ctx context.Context, migrations fs.FS) error {
	switch a.config.Store.Driver {
	case config.StorePostgres:
		db, err := OpenDB(ctx, a.config.Store.Postgres.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)

		if migrations != nil {
			if err := applyMigrations(migrations, db); err != nil {
				return fmt.Errorf("db migrate: %w", err)
			}
		}

		a.store, err = postgres.NewTransactionRepository(db)
		return err

	case config.StoreDynamoDB:
		c := a.config.Store.DynamoDB
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if c.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Endpoint)
			}
		})
		a.store, err = dynamo.NewTransactionRepository(client, c.Table, c.ReferenceIndex)
		return err

	default:
		a.store = memory.NewTransactionRepository()
		return nil
	}
}

func (a *App) initQueues(ctx context.Context) error {
	c := a.config.Queue

	switch c.Driver {
	case config.QueueRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		consumer := c.Redis.Consumer
		if consumer == "" {
			consumer = "pixrecon-" + xid.New().String()
		}

		var err error
		a.deposits, err = redisq.New(ctx, rdb, c.Redis.DepositStream, c.Redis.Group, consumer, c.Visibility)
		if err != nil {
			return fmt.Errorf("deposit stream: %w", err)
		}
		a.withdrawals, err = redisq.New(ctx, rdb, c.Redis.WithdrawalStream, c.Redis.Group, consumer, c.Visibility)
		if err != nil {
			return fmt.Errorf("withdrawal stream: %w", err)
		}

	case config.QueueSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.SQS.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if c.SQS.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.SQS.Endpoint)
			}
		})
		a.deposits = sqsq.New(client, c.SQS.DepositURL)
		a.withdrawals = sqsq.New(client, c.SQS.WithdrawalURL)

	default:
		a.deposits = memqueue.New(c.Visibility)
		a.withdrawals = memqueue.New(c.Visibility)
	}

	return nil
}

func (a *App) initGateway() error {
	c := a.config.Gateway

	if c.Mode != config.GatewayAsaas {
		a.gateway = asaas.NewFake()
		return nil
	}

	gw, err := asaas.NewService(c.URL, c.APIKey, asaas.WithLogger(a.logger.Logger))
	if err != nil {
		return err
	}
	a.gateway = gw

	return nil
}

// Reconcilers returns one consumer per queue, each bound to its transaction kind
func (a *App) Reconcilers() []*reconciler.Service {
	cfg := a.config.Reconciler.Service()

	return []*reconciler.Service{
		reconciler.New("deposit", a.deposits, a.store, cfg,
			reconciler.WithKind(model.KindDeposit),
			reconciler.WithLogger(a.logger),
		),
		reconciler.New("withdrawal", a.withdrawals, a.store, cfg,
			reconciler.WithKind(model.KindWithdrawal),
			reconciler.WithLogger(a.logger),
		),
	}
}

func (a *App) Store() storage.TransactionRepository {
	return a.store
}

// Close releases connections, errors are logged only
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
	a.logger.Info().Msg("Shutting down application")
}

// OpenDB opens and pings a postgres connection
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}
