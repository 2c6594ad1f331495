package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/config"
	"github.com/yairfalse/valvo/dashboard"
	"github.com/yairfalse/valvo/internal/api"
	"github.com/yairfalse/valvo/policy"
	"github.com/yairfalse/valvo/sdlc"
	"github.com/yairfalse/valvo/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enforcement API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "valvo",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTELEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	if err := os.MkdirAll(cfg.AuditDir, 0750); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	auditLog, err := audit.Open(cfg.AuditDir)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	engine := policy.NewEngine(auditLog)
	loader := policy.NewLoader(cfg.TemplateDir, engine)
	loaded, err := loader.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load policy templates: %w", err)
	}

	registry := sdlc.NewRegistry()
	aggregator := dashboard.NewAggregator(auditLog, engine, registry)

	var metricsHandler http.Handler
	if telemetry.PrometheusRegistry != nil {
		metricsHandler = promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{})
	}
	server := api.NewServer(engine, aggregator, registry, metricsHandler)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Int("policies", loaded).
		Str("template_dir", cfg.TemplateDir).
		Str("audit_dir", cfg.AuditDir).
		Msg("valvo starting")

	var group run.Group
	group.Add(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})
	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = group.Run()
	if _, ok := err.(run.SignalError); ok {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(flagConfig)
}
