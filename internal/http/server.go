package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/catalog"
	"github.com/studyshare/studyshare-api/internal/config"
	"github.com/studyshare/studyshare-api/internal/identity"
	"github.com/studyshare/studyshare-api/internal/insight"
	"github.com/studyshare/studyshare-api/internal/metrics"
	"github.com/studyshare/studyshare-api/internal/ratelimit"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// InsightProcessor produces AI insight for a note.
type InsightProcessor interface {
	Process(ctx context.Context, noteID string) (insight.Result, error)
}

// RateLimiter admits or rejects one request for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
	Limit() int
}

// Options carries the server's collaborators.
type Options struct {
	Config  config.Config
	Health  HealthChecker
	Catalog *catalog.Service
	Auth    identity.Authenticator
	Insight InsightProcessor
	// Limiter throttles /ai/process; nil disables throttling.
	Limiter RateLimiter
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	health  HealthChecker
	catalog *catalog.Service
	auth    identity.Authenticator
	insight InsightProcessor
	limiter RateLimiter
	metrics *metrics.Collector
	logger  *zap.Logger
	router  chi.Router
	httpSrv *http.Server

	trustedProxies []netip.Prefix
}

// New constructs the HTTP server with base middleware and routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector("studyshare")
	}

	s := &Server{
		cfg:     opts.Config,
		health:  opts.Health,
		catalog: opts.Catalog,
		auth:    opts.Auth,
		insight: opts.Insight,
		limiter: opts.Limiter,
		metrics: collector,
		logger:  logger.Named("http"),
	}
	proxies, err := config.ParseProxyPrefixes(opts.Config.TrustedProxies)
	if err != nil {
		s.logger.Warn("ignoring trusted proxies", zap.Error(err))
	}
	s.trustedProxies = proxies

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.forwardedFor)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router = r
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
		})
	})

	s.router.Route("/notes", func(r chi.Router) {
		r.Get("/", s.handleListNotes)
		r.With(s.requireAuth).Post("/upload", s.handleUploadNote)
		r.With(s.requireAuth).Get("/user/uploads", s.handleUserUploads)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetNote)
			r.With(s.requireAuth).Delete("/", s.handleDeleteNote)
			r.Post("/download", s.handleDownload)
			r.With(s.requireAuth).Post("/rate", s.handleRateNote)
			r.With(s.requireAuth).Delete("/rate", s.handleDeleteRating)
		})
	})

	s.router.Route("/search", func(r chi.Router) {
		r.Get("/", s.handleSearch)
		r.Get("/suggestions", s.handleSuggestions)
		r.Get("/popular", s.handlePopular)
	})

	s.router.Route("/users", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handleUpdateProfile)
		r.Get("/dashboard", s.handleDashboard)
	})

	s.router.Route("/ai", func(r chi.Router) {
		r.With(s.rateLimit).Post("/process", s.handleProcessAI)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is done or serving fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
