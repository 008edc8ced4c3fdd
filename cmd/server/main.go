package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/botica/internal"
	"github.com/dukerupert/botica/internal/catalog"
	"github.com/dukerupert/botica/internal/checkout"
	"github.com/dukerupert/botica/internal/cookie"
	"github.com/dukerupert/botica/internal/crypto"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/events"
	"github.com/dukerupert/botica/internal/handler"
	"github.com/dukerupert/botica/internal/handler/api"
	"github.com/dukerupert/botica/internal/httpclient"
	"github.com/dukerupert/botica/internal/identity"
	"github.com/dukerupert/botica/internal/middleware"
	"github.com/dukerupert/botica/internal/orchestrator"
	"github.com/dukerupert/botica/internal/recetas"
	"github.com/dukerupert/botica/internal/router"
	"github.com/dukerupert/botica/internal/routes"
	"github.com/dukerupert/botica/internal/session"
	"github.com/dukerupert/botica/internal/storage"
	"github.com/dukerupert/botica/internal/telemetry"
	"github.com/dukerupert/botica/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 15 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Initialize Sentry error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	defer flushSentry()

	// ==========================================================================
	// Storage
	// ==========================================================================

	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("Session storage ready", "provider", cfg.Storage.Provider)

	sessions := session.NewRepository(store, logger)
	if cfg.Storage.EncryptionKey != "" {
		key, err := crypto.DecodeKeyBase64(cfg.Storage.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid SESSION_ENCRYPTION_KEY: %w", err)
		}
		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			return fmt.Errorf("failed to initialize encryptor: %w", err)
		}
		sessions.WithEncryptor(enc)
	}

	publisher, err := events.NewPublisher(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize events publisher: %w", err)
	}
	defer publisher.Close()

	// ==========================================================================
	// Remote services
	// ==========================================================================

	checkoutMetrics := telemetry.NewCheckoutMetrics("botica", prometheus.DefaultRegisterer)
	httpMetrics := middleware.NewMetrics("botica", prometheus.DefaultRegisterer)

	clientOpts := httpclient.Options{
		Timeout:     cfg.HTTP.Timeout,
		ReadRetries: cfg.HTTP.ReadRetries,
		Metrics:     checkoutMetrics,
		Logger:      logger,
	}
	identityService := identity.NewClient(httpclient.New("identity", cfg.Services.IdentityURL, clientOpts))
	catalogService := catalog.NewClient(httpclient.New("catalog", cfg.Services.CatalogURL, clientOpts))
	recetasService := recetas.NewClient(httpclient.New("recetas", cfg.Services.RecetasURL, clientOpts))
	orchestratorService := orchestrator.NewClient(httpclient.New("orchestrator", cfg.Services.OrchestratorURL, clientOpts))

	// ==========================================================================
	// Checkout
	// ==========================================================================

	poller := validation.NewPoller(orchestratorService, recetasService, validation.SystemClock{}, validation.Config{
		Interval:          cfg.Poll.Interval,
		MaxAttempts:       cfg.Poll.MaxAttempts,
		RequestValidation: cfg.Poll.RequestValidation,
	}, logger, checkoutMetrics)

	registrar := checkout.NewRegistrar(orchestratorService, cfg.Checkout.PaymentMethod, publisher, checkoutMetrics, logger)

	registry := checkout.NewRegistry(checkout.Deps{
		Recetas:        recetasService,
		Poller:         poller,
		Registrar:      registrar,
		Publisher:      publisher,
		Policy:         domain.ParseRejectionPolicy(cfg.Checkout.RejectionPolicy),
		RequireConsent: cfg.Checkout.RequireConsent,
		Metrics:        checkoutMetrics,
		Logger:         logger,
		Now:            time.Now,
	}, sessions)
	go registry.Run(ctx, time.Minute, cfg.Checkout.SessionIdle)

	logger.Info("Checkout configured",
		"rejection_policy", cfg.Checkout.RejectionPolicy,
		"require_consent", cfg.Checkout.RequireConsent,
		"poll_interval", cfg.Poll.Interval,
		"poll_max_attempts", cfg.Poll.MaxAttempts,
	)

	// ==========================================================================
	// Handlers
	// ==========================================================================

	cookies := cookie.NewConfig(cfg.Cookie.Domain, cfg.Cookie.Secure, int(cfg.Storage.SessionTTL.Seconds()))

	loginLimiter := middleware.NewRateLimiter(middleware.StrictRateLimiterConfig())
	defer loginLimiter.Stop()
	defaultRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer defaultRateLimiter.Stop()

	apiDeps := routes.APIDeps{
		AuthHandler:         api.NewAuthHandler(identityService, registry, cookies),
		ProfileHandler:      api.NewProfileHandler(identityService, registry),
		CartHandler:         api.NewCartHandler(catalogService, registry),
		PrescriptionHandler: api.NewPrescriptionHandler(registry),
		CheckoutHandler:     api.NewCheckoutHandler(registry),
		OrdersHandler:       api.NewOrdersHandler(orchestratorService, registry),
		LoginLimiter:        loginLimiter.Middleware,
		BodyLimit:           middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		DocumentLimit:       middleware.MaxBodySize(middleware.DocumentMaxBodySize),
	}

	opsDeps := routes.OpsDeps{
		Health: func(w http.ResponseWriter, r *http.Request) {
			handler.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
		Metrics: httpMetrics.Handler(),
	}

	// ==========================================================================
	// Router
	// ==========================================================================

	r := router.New(
		router.Recovery(logger),
		telemetry.SentryMiddleware(),
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()),
	)

	// Health and metrics carry no buyer session.
	routes.RegisterOpsRoutes(r, opsDeps)

	apiRouter := r.Group(
		defaultRateLimiter.Middleware,
		middleware.Session(cookies),
		telemetry.SentryContextMiddleware(domain.SessionFromContext),
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)
	routes.RegisterAPIRoutes(apiRouter, apiDeps)
	logger.Info("Routes registered", "count", len(r.Routes()))

	// CORS wraps the mux so preflight requests never reach route matching.
	root := router.Chain(r, router.CORS(router.NormalizeOrigins(cfg.AllowedOrigins)))

	// ==========================================================================
	// Start server
	// ==========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting storefront BFF", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
