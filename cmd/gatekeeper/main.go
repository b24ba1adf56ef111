package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/gatekeeper/adapters/events"
	"github.com/layer-3/gatekeeper/adapters/identity"
	"github.com/layer-3/gatekeeper/adapters/metrics"
	"github.com/layer-3/gatekeeper/adapters/store"
	"github.com/layer-3/gatekeeper/adapters/tokenizer"
	"github.com/layer-3/gatekeeper/config"
	"github.com/layer-3/gatekeeper/internal/logs"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/layer-3/gatekeeper/service"
	httptransport "github.com/layer-3/gatekeeper/transport/http"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatekeeper: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logs.New(os.Stdout, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	revocations, publisher, closeRedis, err := setupRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	identities, closeDB, err := setupIdentities(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		return err
	}

	tokens, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		AccessSecret:  []byte(cfg.Auth.AccessSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
		Leeway:        cfg.Auth.Leeway,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create tokenizer")
	}

	guard := service.NewSessionGuard(tokens, identities, revocations,
		service.WithEventPublisher(events.NewWatermillPublisher(publisher, cfg.Events.TopicPrefix)),
		service.WithMetrics(recorder),
		service.WithLogger(logger),
		service.WithReuseGrace(cfg.Auth.ReuseGrace),
		service.WithLookupTimeout(cfg.Auth.LookupTimeout),
	)

	if cfg.AppEnv == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httptransport.SetupRouter(guard, httptransport.RouterConfig{
		Cookies: httptransport.Cookies{
			AccessName:  cfg.Cookie.AccessName,
			RefreshName: cfg.Cookie.RefreshName,
			Domain:      cfg.Cookie.Domain,
		},
		ExposeReason: cfg.IsLocal(),
		Gatherer:     registry,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr), slog.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// setupRedis shares one client between the revocation store and the event stream.
// Without REDIS_URL both stay in process.
func setupRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.RevocationStore, message.Publisher, func(), error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, revocations and events stay in memory")
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return store.NewMemoryStore(), pubSub, func() { _ = pubSub.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to parse REDIS_URL")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, errors.Wrap(err, "failed to connect to redis")
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, errors.Wrap(err, "failed to create redis stream publisher")
	}

	closeFn := func() {
		_ = publisher.Close()
		_ = client.Close()
	}
	return store.NewRedisStore(client), publisher, closeFn, nil
}

// setupIdentities connects the postgres identity store. Without DATABASE_URL identities are
// kept in memory and every lookup reports identity_not_found.
func setupIdentities(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.IdentityLookup, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using an empty in-memory identity store")
		return identity.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create postgres pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "failed to connect to postgres")
	}

	identities, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.Database.Schema))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return identities, pool.Close, nil
}
