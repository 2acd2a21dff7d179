package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/assistant-service/internal/app"
	"github.com/transfa/assistant-service/internal/config"
	"github.com/transfa/assistant-service/internal/ledger"
	"github.com/transfa/assistant-service/internal/metrics"
	"github.com/transfa/assistant-service/internal/store"
	"github.com/transfa/assistant-service/internal/tools"
	"github.com/transfa/assistant-service/pkg/rabbitmq"
)

// core holds the components shared by serve and mcp.
type core struct {
	repo       store.Repository
	publisher  rabbitmq.Publisher
	metrics    *metrics.Metrics
	dispatcher *tools.Dispatcher
	closers    []func()
}

func (c *core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func buildCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core, error) {
	c := &core{metrics: metrics.New()}

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.repo = repo
	c.closers = append(c.closers, closeRepo)

	c.publisher = openPublisher(cfg, logger)
	c.closers = append(c.closers, c.publisher.Close)

	transfers := ledger.New(repo, c.publisher, c.metrics, logger, ledger.NewAmountPolicy(cfg.MaxTransferAmount, cfg.Currency))
	c.dispatcher = tools.NewDispatcher(app.NewService(repo, logger), transfers, logger, c.metrics)
	return c, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Repository, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		repo := store.NewMemoryRepository()
		store.SeedDemoData(repo, time.Now().UTC())
		logger.Warn("using in-memory store seeded with demo data")
		return repo, func() {}, nil
	}

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connection established")
	return store.NewPostgresRepository(pool), pool.Close, nil
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return pool, nil
}

// openPublisher connects to RabbitMQ, falling back to a logging publisher when
// the broker is not configured or unreachable.
func openPublisher(cfg *config.Config, logger *slog.Logger) rabbitmq.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set, events will only be logged")
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.Exchange, logger)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	logger.Info("RabbitMQ producer initialized", "exchange", cfg.Exchange)
	return producer
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}
	return client, nil
}
