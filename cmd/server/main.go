package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/eventflow/internal/auth"
	"github.com/iliyamo/eventflow/internal/booking"
	"github.com/iliyamo/eventflow/internal/catalog"
	"github.com/iliyamo/eventflow/internal/config"
	"github.com/iliyamo/eventflow/internal/database"
	"github.com/iliyamo/eventflow/internal/eventbus"
	"github.com/iliyamo/eventflow/internal/handler"
	"github.com/iliyamo/eventflow/internal/logger"
	"github.com/iliyamo/eventflow/internal/queue"
	"github.com/iliyamo/eventflow/internal/repository"
	"github.com/iliyamo/eventflow/internal/repository/memstore"
	"github.com/iliyamo/eventflow/internal/repository/sqlstore"
	"github.com/iliyamo/eventflow/internal/router"
	"github.com/iliyamo/eventflow/internal/subscription"
)

func main() {
	cfg := config.Load() // Load environment config

	zl, err := logger.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.DB.Driver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on exit")
		return memstore.New(), nil
	}
	dialect, err := sqlstore.DialectFor(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, database.Options{
		Driver:  cfg.DB.Driver,
		User:    cfg.DB.User,
		Pass:    cfg.DB.Pass,
		Host:    cfg.DB.Host,
		Port:    cfg.DB.Port,
		Name:    cfg.DB.Name,
		SSLMode: cfg.DB.SSLMode,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, cfg.DB.Driver, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, dialect), nil
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := eventbus.New(eventbus.WithBuffer(cfg.SubscriptionBuffer), eventbus.WithLogger(log.Named("bus")))
	defer bus.Close()

	engine := booking.New(store, bus,
		booking.WithLogger(log.Named("booking")),
		booking.WithRetries(cfg.TxMaxRetries, 10*time.Millisecond))
	cat := catalog.New(store, bus,
		catalog.WithLogger(log.Named("catalog")),
		catalog.WithRetries(cfg.TxMaxRetries, 10*time.Millisecond))
	authSvc := auth.New(store, auth.Settings{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}, log.Named("auth"))

	rdb := config.NewRedisClient(ctx, config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}

	e := router.New(router.Deps{
		Log:           log,
		JWTSecret:     cfg.JWTSecret,
		CORSOrigins:   cfg.CORSOrigins,
		Redis:         rdb,
		RateLimit:     config.LoadRateLimitConfig(),
		Cache:         config.LoadCacheConfig(),
		Store:         store,
		Auth:          handler.NewAuthHandler(authSvc),
		Events:        handler.NewEventHandler(cat),
		Tickets:       handler.NewTicketHandler(engine, cat),
		Users:         handler.NewUserHandler(cat),
		Subscriptions: handler.NewSubscriptionHandler(subscription.NewRouter(bus, cfg.SubscriptionBuffer), log.Named("ws"), cfg.CORSOrigins),
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQP.Enabled {
		pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Named("amqp"))
		defer pub.Close()
		notifier := queue.NewNotifier(bus, pub, log.Named("notifier"), 1024)
		consumer := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue,
			queue.NewAuditLog(cfg.AMQP.AuditLogDir), log.Named("audit"))
		g.Go(func() error { return notifier.Run(gctx) })
		g.Go(func() error { return consumer.Run(gctx) })
	}

	addr := ":" + cfg.Port // Address string with port
	g.Go(func() error {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", cfg.DB.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// end live streams first so hijacked connections do not hold shutdown
		bus.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
