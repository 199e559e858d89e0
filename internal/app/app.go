// Package app wires configuration, storage, services and transport into a
// running HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/finwell/finwell-backend/internal/adapter/postgres"
	"github.com/finwell/finwell-backend/internal/adapter/postgres/ledger"
	"github.com/finwell/finwell-backend/internal/adapter/provider/workersai"
	"github.com/finwell/finwell-backend/internal/auth"
	"github.com/finwell/finwell-backend/internal/config"
	"github.com/finwell/finwell-backend/internal/diag"
	"github.com/finwell/finwell-backend/internal/service/advisor"
	"github.com/finwell/finwell-backend/internal/transport/middleware"
	"github.com/finwell/finwell-backend/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, connects to
// the database, builds the advisor pipeline and serves HTTP until ctx is
// canceled, then shuts down gracefully.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("environment", cfg.Environment),
		slog.Bool("provider_configured", cfg.Provider.Configured()),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	var generator advisor.TextGenerator
	if cfg.Provider.Configured() {
		generator = workersai.NewClient(cfg.Provider, logger)
	} else {
		logger.Warn("text provider not configured, advisor runs in fallback-only mode")
	}

	ledgerRepo := ledger.New(pool)
	advisorSvc := advisor.NewService(logger, cfg.Advisor, ledgerRepo, generator)
	trail := diag.New(cfg.Advisor.DiagBufferSize)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)

	advisorHandler := rest.NewAdvisorHandler(advisorSvc, trail, cfg.IsProduction(), logger)
	healthHandler := rest.NewHealthHandler(pool, advisorSvc, BuildVersion())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /advisor/insights", advisorHandler.GetInsight)
	mux.HandleFunc("POST /advisor/insights/free-check", advisorHandler.FreeCheck)
	mux.HandleFunc("GET /advisor/provider-health", advisorHandler.ProviderHealth)
	mux.HandleFunc("GET /advisor/diagnostics", advisorHandler.Diagnostics)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/live", healthHandler.Live)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)

	ipLimiter := middleware.NewRateLimiter(time.Minute)
	defer ipLimiter.Stop()

	handler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORS),
		ipLimiter.Limit(120),
		middleware.Auth(jwtManager),
	)(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("stopped")
	return nil
}
