package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/walletledger/internal/db"
	"github.com/nkiryanov/walletledger/internal/events"
	"github.com/nkiryanov/walletledger/internal/events/kafka"
	"github.com/nkiryanov/walletledger/internal/handlers"
	"github.com/nkiryanov/walletledger/internal/handlers/middleware"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/repository/postgres"
	"github.com/nkiryanov/walletledger/internal/service/auth"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
	"github.com/nkiryanov/walletledger/internal/service/reconcile"
	"github.com/nkiryanov/walletledger/internal/service/statement"
	"github.com/nkiryanov/walletledger/internal/service/wallet"
)

const (
	shutdownTimeout  = 5 * time.Second
	reconcileTimeout = 10 * time.Minute
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	scheduler *reconcile.Scheduler

	// Released in reverse order on Close
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	tokenManager, err := auth.New(auth.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool, postgres.WithLockTimeout(c.LockTimeout))

	var publisher events.Publisher = events.NopPublisher{}
	if len(c.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(c.KafkaBrokers, c.KafkaTopic)
		app.closers = append(app.closers, func() {
			if err := kp.Close(); err != nil {
				l.Warn("Failed to close kafka publisher", "error", err)
			}
		})
		publisher = kp
		l.Info("Publishing transaction events", "brokers", c.KafkaBrokers, "topic", c.KafkaTopic)
	}

	var idempotency func(http.Handler) http.Handler
	if c.RedisURL != "" {
		cache, err := newRedisClient(ctx, c.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = cache.Close() })
		idempotency = middleware.Idempotency(cache, c.IdempotencyTTL, l)
	}

	// Initialize services
	walletService := wallet.NewService(storage, l)
	ledgerService := ledger.NewService(storage, publisher, l)
	statementReader := statement.NewReader(storage)

	if c.ReconcileSchedule != "" {
		app.scheduler, err = reconcile.NewScheduler(reconcile.NewChecker(storage, l), c.ReconcileSchedule, reconcileTimeout, l)
		if err != nil {
			return nil, err
		}
	}

	app.Handler = handlers.NewRouter(
		tokenManager,
		walletService,
		ledgerService,
		statementReader,
		idempotency,
		l,
	)

	return app, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")

		if s.scheduler != nil {
			select {
			case <-s.scheduler.Stop().Done():
			case <-timeoutCtx.Done():
				s.logger.Warn("Reconciliation still running on shutdown")
			}
		}
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

// Close releases connections opened by NewServerApp
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
