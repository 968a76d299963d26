package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/action"
	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/pipeline"
	"github.com/gym-retention/platform/internal/risk"
	"github.com/gym-retention/platform/internal/settings"
	"github.com/gym-retention/platform/internal/shared/auth"
	"github.com/gym-retention/platform/internal/shared/metrics"
	secmiddleware "github.com/gym-retention/platform/internal/shared/middleware"
	"github.com/gym-retention/platform/internal/syncjob"
)

// serve runs the HTTP server until ctx is cancelled, then shuts down gracefully
func serve(ctx context.Context, app *App) error {
	cfg := app.Config
	log := app.Logger

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Scheduler.Enabled {
		scheduler := pipeline.NewScheduler(app.Pipeline, cfg.Scheduler.Interval, cfg.Scheduler.RunOnStart, log)
		go func() {
			if err := scheduler.Start(ctx); err != nil && err != context.Canceled {
				log.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	go reportPoolStats(ctx, app)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("env", cfg.Server.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("scheduler", cfg.Scheduler.Enabled),
			zap.Bool("settings_strict", cfg.Settings.Strict),
			zap.Bool("event_stream", app.Bus != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newRouter(app *App) http.Handler {
	cfg := app.Config

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(app.Logger))
	r.Use(middleware.Recoverer)
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))
	if cfg.Server.RateLimit > 0 {
		r.Use(secmiddleware.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).Middleware)
	}

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	authenticate := auth.Middleware(cfg.Auth)

	settingsHandler := settings.NewHandler(app.Settings, cfg.Auth.AdminRoles)
	memberHandler := member.NewHandler(app.Members, app.Actions)
	actionHandler := action.NewHandler(app.Actions, app.Generator, app.Publisher, app.Logger)
	riskHandler := risk.NewHandler(app.Calculator, app.Logger)
	syncHandler := syncjob.NewHandler(app.Syncer, app.SyncLogs, app.Logger)
	pipelineHandler := pipeline.NewHandler(app.Pipeline, app.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.IsProduction() {
			r.Use(authenticate)
		}

		// Batch runs can take minutes; reads get the usual deadline
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Mount("/members", memberHandler.Routes())
			r.Mount("/action-items", actionHandler.Routes())
		})

		r.Mount("/risk-scores", riskHandler.Routes())
		r.Mount("/sync", syncHandler.Routes())
		r.Mount("/pipeline", pipelineHandler.Routes())

		// Settings edits are checked against the caller's roles, so the token
		// is required in every environment.
		r.Group(func(r chi.Router) {
			if !cfg.Server.IsProduction() {
				r.Use(authenticate)
			}
			r.Mount("/settings", settingsHandler.Routes())
		})
	})

	return r
}

// reportPoolStats feeds the connection gauge until ctx is cancelled
func reportPoolStats(ctx context.Context, app *App) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBConnections(app.DB.Stats())
		}
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Gym Retention Platform",
		"version": Version,
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
