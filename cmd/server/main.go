package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/catalog"
	"github.com/studyshare/studyshare-api/internal/config"
	"github.com/studyshare/studyshare-api/internal/genai"
	httpserver "github.com/studyshare/studyshare-api/internal/http"
	"github.com/studyshare/studyshare-api/internal/identity"
	"github.com/studyshare/studyshare-api/internal/insight"
	"github.com/studyshare/studyshare-api/internal/logging"
	"github.com/studyshare/studyshare-api/internal/metrics"
	"github.com/studyshare/studyshare-api/internal/objectstore"
	"github.com/studyshare/studyshare-api/internal/ratelimit"
	"github.com/studyshare/studyshare-api/internal/repository"
	"github.com/studyshare/studyshare-api/internal/store"
)

const metricsNamespace = "studyshare"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		SlowQueryThreshold:     time.Duration(cfg.DBSlowQueryMillis) * time.Millisecond,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.DBMigrationsDir != "" {
		applied, err := st.Migrate(ctx, cfg.DBMigrationsDir)
		if err != nil {
			return err
		}
		logger.Info("schema up to date", zap.Strings("applied", applied))
	}

	collector := metrics.NewCollector(metricsNamespace)
	collector.RegisterPoolStats(metricsNamespace, st.Stats)

	objects, err := objectstore.NewMinioStore(dbCtx, objectstore.Options{
		Endpoint:  cfg.ObjectStoreEndpoint,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Bucket:    cfg.ObjectStoreBucket,
		UseSSL:    cfg.ObjectStoreUseSSL,
		PublicURL: cfg.ObjectStorePublicURL,
		Timeout:   time.Duration(cfg.StorageTimeoutSecs) * time.Second,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	accounts, err := identity.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseServiceKey,
		time.Duration(cfg.IdentityTimeoutSecs)*time.Second, logger)
	if err != nil {
		return err
	}
	var auth identity.Authenticator = accounts
	if cfg.SupabaseJWTSecret != "" {
		verifier, err := identity.NewJWTVerifier(cfg.SupabaseJWTSecret, identity.DefaultAudience)
		if err != nil {
			return err
		}
		auth = verifier
		logger.Info("verifying access tokens locally")
	}

	repo := repository.New(st)
	svc := catalog.New(catalog.Deps{
		Notes:          repo.Notes,
		Ratings:        repo.Ratings,
		Profiles:       repo.Profiles,
		Objects:        objects,
		Accounts:       accounts,
		Metrics:        collector,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	client, err := genai.NewHTTPClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel,
		time.Duration(cfg.GeminiTimeoutSecs)*time.Second, logger)
	if err != nil {
		return err
	}
	breakerSettings := genai.DefaultBreakerSettings()
	generator := genai.NewBreakerGenerator(client, breakerSettings, logger)
	collector.RegisterBreakerState(metricsNamespace, breakerSettings.Name, generator.State)
	relay := insight.NewRelay(repo.Notes, generator, logger)

	var limiter httpserver.RateLimiter
	if cfg.RedisAddr != "" {
		l, err := ratelimit.NewFixedWindowLimiter(ratelimit.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Limit:    cfg.AIRateLimitPerMinute,
			Window:   time.Minute,
		})
		if err != nil {
			return err
		}
		defer l.Close()
		if err := l.Ping(dbCtx); err != nil {
			logger.Warn("rate limiter redis unreachable, requests will not be throttled until it recovers", zap.Error(err))
		}
		limiter = l
	}

	server := httpserver.New(httpserver.Options{
		Config:  cfg,
		Health:  st,
		Catalog: svc,
		Auth:    auth,
		Insight: relay,
		Limiter: limiter,
		Metrics: collector,
		Logger:  logger,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var serveErr error
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return serveErr
}
