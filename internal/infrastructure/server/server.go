package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/Dashboard/backend/internal/api/http"
	"github.com/GriffinCanCode/Dashboard/backend/internal/api/middleware"
	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
	"github.com/GriffinCanCode/Dashboard/backend/internal/domain/widget"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/sandbox"
	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/Dashboard/backend/internal/ws"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	manager *widget.Manager
	store   widget.Store
	proxy   *bridge.Proxy
	watcher *widget.Watcher
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// EngineConfig converts the engine section into instance limits.
func EngineConfig(cfg config.EngineConfig) sandbox.Config {
	return sandbox.Config{
		RenderLoopThreshold: cfg.RenderLoopThreshold,
		RenderWindow:        cfg.RenderWindow.Duration,
		ExecTimeout:         cfg.ExecTimeout.Duration,
		ConsoleBuffer:       cfg.ConsoleBuffer,
		SyncTimeout:         cfg.SyncTimeout.Duration,
	}
}

// OpenStore opens the configured record store.
func OpenStore(cfg config.StorageConfig) (widget.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return widget.NewSQLiteStore(cfg.DSN)
	case "memory", "":
		return widget.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := logging.NewFor(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing dashboard server",
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("render_loop_threshold", cfg.Engine.RenderLoopThreshold),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("dashboard", logger.Component("tracing").Logger)

	proxy := bridge.NewProxy(bridge.ProxyOptions{
		Timeout:         cfg.Proxy.Timeout.Duration,
		InsecureTLS:     cfg.Proxy.InsecureTLS,
		UserAgent:       cfg.Proxy.UserAgent,
		MaxBodyBytes:    cfg.Proxy.MaxBodyBytes,
		BreakerFailures: cfg.Proxy.BreakerFailures,
		BreakerTimeout:  cfg.Proxy.BreakerTimeout.Duration,
	},
		bridge.WithProxyLogger(logger.Component("proxy").Logger),
		bridge.WithProxyObserver(metrics),
	)
	// Widgets reach the proxy over loopback so requests share the path and
	// limits of browser-originated ones.
	fetcher := bridge.NewClient(cfg.BridgeBaseURL(), cfg.Proxy.Path,
		bridge.WithClientTimeout(cfg.Proxy.Timeout.Duration+5*time.Second))

	store, err := OpenStore(cfg.Storage)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to open widget store: %w", err)
	}

	manager := widget.NewManager(store,
		widget.NewHub(widget.DefaultReportHistory, logger.Component("reports").Logger),
		EngineConfig(cfg.Engine),
		widget.WithFetcher(fetcher),
		widget.WithMetrics(metrics),
		widget.WithLogger(logger.Component("widgets").Logger),
	)

	if _, err := manager.Restore(ctx); err != nil {
		logger.Warn("Failed to restore widgets", zap.Error(err))
	}

	s := &Server{
		manager: manager,
		store:   store,
		proxy:   proxy,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	if cfg.Storage.SeedDir != "" {
		seeder := widget.NewSeeder(manager, cfg.Storage.SeedDir, logger.Component("seeder").Logger)
		if _, err := seeder.Seed(ctx); err != nil {
			logger.Warn("Failed to seed widgets", zap.Error(err))
		}
		if cfg.Storage.Watch {
			if err := s.startWatcher(ctx, seeder); err != nil {
				logger.Warn("Failed to watch seed directory", zap.Error(err))
			}
		}
	}

	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully", zap.Int("widgets", manager.Count()))
	return s, nil
}

func (s *Server) startWatcher(ctx context.Context, seeder *widget.Seeder) error {
	watcher, err := widget.NewWatcher(seeder, widget.DefaultDebounce, s.logger.Component("watcher").Logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		_ = watcher.Stop()
		return err
	}
	s.watcher = watcher
	s.logger.Info("Watching seed directory", zap.String("dir", seeder.Dir()))
	return nil
}

func (s *Server) routes() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins...)))

	var proxyLimit []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Int("proxy_rps", cfg.RateLimit.ProxyRPS),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))

		if cfg.RateLimit.ProxyRPS > 0 {
			proxyLimit = append(proxyLimit, middleware.RateLimit(
				middleware.ProxyRateLimitConfig(cfg.RateLimit.ProxyRPS, cfg.RateLimit.ProxyBurst)))
		}
	}

	handlers := apihttp.NewHandlers(s.manager, s.proxy, s.metrics, s.logger.Component("api").Logger)
	handlers.Register(router, cfg.Proxy.Path, proxyLimit...)

	wsHandler := ws.NewHandler(s.manager.Hub(), s.metrics, s.logger.Component("stream").Logger)
	router.GET("/stream", wsHandler.HandleConnection)

	return router
}

// Router exposes the HTTP handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Manager returns the widget manager.
func (s *Server) Manager() *widget.Manager {
	return s.manager
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return <-errCh
}

// Close stops widgets and releases resources.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop watcher: %w", err))
		}
	}
	if err := s.manager.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	s.tracer.Close()

	for _, err := range errs {
		s.logger.Error("Shutdown error", zap.Error(err))
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
