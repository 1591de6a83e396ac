// Package main is the entrypoint for healthd, the local ops listener.
//
// healthd exposes the health monitor over HTTP for operators and load
// balancers:
//
//	GET  /health   runs the full probe set and returns the report
//	               (200 for healthy/warning, 503 for critical)
//	POST /recover  runs a fresh check, then the automated-recovery actions
//	               it selects, and returns what was done
//
// It shares the provider wiring of the alert runner but drives the device
// lifecycle manager instead of the dispatcher.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spendwatch/internal/config"
	"spendwatch/internal/devices"
	"spendwatch/internal/health"
	"spendwatch/internal/metrics"
	"spendwatch/internal/provider"
	"spendwatch/internal/resilience"
	"spendwatch/internal/types"
)

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Server serves the health and recovery endpoints.
type Server struct {
	monitor *health.Monitor
	logger  types.Logger
}

// Routes builds the chi router for the ops listener.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/recover", s.handleRecover)
	return r
}

// handleHealth runs the probe set. Critical reports answer 503 so load
// balancers and uptime checks treat the process as down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check(r.Context())

	status := http.StatusOK
	if report.Overall == types.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleRecover runs a fresh health check and the recovery actions it
// selects. Partial failure still answers 200; the body carries the errors.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check(r.Context())
	result := s.monitor.PerformAutomatedRecovery(r.Context(), report)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	srv, err := buildServer(context.Background(), cfg, typedLogger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	addr := ":" + cfg.Health.Port
	logger.Info("healthd listening", "addr", addr, "environment", cfg.Environment)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("listener stopped", "error", err)
		os.Exit(1)
	}
}

// buildServer wires the monitor over the live provider clients.
func buildServer(ctx context.Context, cfg *config.Config, logger types.Logger) (*Server, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	observer := metrics.NewCloudWatchObserver(cwClient, logger)
	exec := resilience.NewExecutor(logger, observer)
	registry := resilience.NewRegistry(resilience.BreakerPolicyFromConfig(cfg.Breaker), logger)

	manager := devices.NewManager(
		provider.NewClient(snsClient, logger),
		exec,
		registry.Get(types.DependencyPushPlatform),
		resilience.PolicyFromConfig(cfg.Retry),
		cfg.Push.PlatformApplicationARN,
		logger,
	)

	monitor := health.NewMonitor(
		manager,
		health.NewExpiryChecker(cfg.Push, types.RealClock{}),
		registry,
		cfg.Health.ProbeTimeout,
		logger,
		observer,
	)

	return &Server{monitor: monitor, logger: logger}, nil
}
