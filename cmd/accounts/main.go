package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/blobstore"
	"github.com/LazarusTes/auth-portal-express/internal/command"
	"github.com/LazarusTes/auth-portal-express/internal/config"
	"github.com/LazarusTes/auth-portal-express/internal/directory"
	"github.com/LazarusTes/auth-portal-express/internal/events"
	"github.com/LazarusTes/auth-portal-express/internal/handler"
	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/logging"
	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/projection"
	"github.com/LazarusTes/auth-portal-express/internal/query"
	redisClient "github.com/LazarusTes/auth-portal-express/internal/redis"
	"github.com/LazarusTes/auth-portal-express/internal/repository"
	"github.com/LazarusTes/auth-portal-express/internal/repository/memory"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"github.com/LazarusTes/auth-portal-express/internal/telemetry"
	"github.com/gin-gonic/gin"
)

const profileViewTTL = 10 * time.Minute

// stores is what a storage driver contributes.
type stores struct {
	profiles   repository.ProfileStore
	roles      roles.Store
	ledger     repository.LedgerStore
	identities directory.IdentityStore
	health     handler.HealthChecker
	close      func() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("accounts service failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", slog.Any("error", err))
		}
	}()

	// Redis: read model, event stream and session revocations.
	redis, err := redisClient.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redis.Close()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn("store close failed", slog.Any("error", err))
		}
	}()

	blobs, err := blobstore.NewDiskStore(cfg.Blob.Dir, cfg.Blob.PublicBaseURL, cfg.Blob.MaxBytes)
	if err != nil {
		return err
	}

	// --- CQRS wiring ---
	collector := metrics.NewCollector()
	publisher := events.NewPublisher(redis.Client, events.AccountEventsStream)
	viewCache := redisClient.NewViewCache[models.ProfileView](redis.Client, "profile:view:", profileViewTTL, logger)
	views := repository.NewProfileReadRepository(st.profiles, st.roles, viewCache)

	dir := directory.NewService(st.identities)
	sessions := directory.NewSessions(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, redisClient.NewRevocationList(redis.Client))
	assigner := roles.NewAssigner(st.roles)
	enforcer := limits.NewEnforcer()

	commandSvc := command.NewAccountCommandService(command.Dependencies{
		Directory:    dir,
		Profiles:     st.profiles,
		Roles:        assigner,
		Ledger:       ledger.New(st.ledger, enforcer),
		Blobs:        blobs,
		Views:        views,
		Publisher:    publisher,
		Metrics:      collector,
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
	})
	querySvc := query.NewAccountQueryService(query.Dependencies{
		Views:        views,
		Profiles:     st.profiles,
		Ledger:       st.ledger,
		Roles:        assigner,
		Enforcer:     enforcer,
		Metrics:      collector,
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
	})
	authSvc := query.NewAuthQueryService(dir, sessions, st.profiles, assigner, collector, logger, cfg.Store.Timeout)

	projector := projection.NewProjector(views, st.profiles, collector, logger)
	if err := projector.Recount(ctx); err != nil {
		logger.Warn("initial profile count failed", slog.Any("error", err))
	}

	router := handler.NewRouter(handler.RouterConfig{
		Logger:           logger,
		Metrics:          collector,
		Verifier:         sessions,
		SignUps:          commandSvc,
		Commands:         commandSvc,
		Queries:          querySvc,
		Auth:             authSvc,
		DocumentsDir:     blobs.Dir(),
		DocumentsURL:     cfg.Blob.PublicBaseURL,
		MaxDocumentBytes: cfg.Blob.MaxBytes,
		Health: map[string]handler.HealthChecker{
			"redis": func(ctx context.Context) error { return redis.Ping(ctx).Err() },
			"store": st.health,
		},
	})

	go func() {
		consumer, _ := os.Hostname()
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "accounts-projection",
			Consumer: "accounts-" + consumer,
			Stream:   events.AccountEventsStream,
			Handler:  projector.HandleAccountEvent,
			Logger:   logger,
		})
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber stopped", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("accounts service starting", slog.String("port", cfg.HTTP.Port), slog.String("storage", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return &stores{
			profiles:   store,
			roles:      store,
			ledger:     store,
			identities: directory.NewMemoryStore(),
			health:     func(context.Context) error { return nil },
			close:      func() error { return nil },
		}, nil
	default:
		db, err := repository.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		if err := repository.ApplyMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		profiles := repository.NewProfileRepository(db)
		return &stores{
			profiles:   profiles,
			roles:      profiles,
			ledger:     repository.NewLedgerRepository(db),
			identities: repository.NewIdentityRepository(db),
			health:     pingDB(db),
			close:      db.Close,
		}, nil
	}
}

func pingDB(db *sql.DB) handler.HealthChecker {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}
