// Package main is the facility registry API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"

	"github.com/openhfr/facility-registry/pkg/config"
	"github.com/openhfr/facility-registry/pkg/db"
	"github.com/openhfr/facility-registry/pkg/hierarchy"
)

func main() {
	var (
		configPath string
		seedPath   string
		listenAddr string
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&seedPath, "seed-levels", "", "YAML list of level names applied to an empty hierarchy")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides server.listen)")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if seedPath != "" {
		cfg.Server.SeedLevels = seedPath
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		glog.Fatalf("Invalid log configuration: %v", err)
	}
	slog.SetDefault(logger)

	logger.Info("starting facility registry",
		"listen", cfg.Server.Listen,
		"database", cfg.Database.Type,
		"authMode", cfg.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	app, err := newApp(cfg, gormDB, logger)
	if err != nil {
		glog.Fatalf("Failed to assemble server: %v", err)
	}

	if err := db.Migrate(ctx, gormDB, logger, app.migrators()...); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	if cfg.Server.SeedLevels != "" {
		if err := seedLevels(ctx, app.tree, cfg.Server.SeedLevels, logger); err != nil {
			glog.Fatalf("Failed to seed levels: %v", err)
		}
	}

	go app.retention.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           app.router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()
	logger.Info("facility registry ready", "listen", cfg.Server.Listen)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Broadcasts started by approvals run detached from their requests.
	drained := make(chan struct{})
	go func() {
		app.workflow.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out waiting for webhook broadcasts")
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("facility registry stopped")
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("log.format %q is not one of text, json", cfg.Format)
	}
}

func seedLevels(ctx context.Context, tree *hierarchy.Manager, path string, logger *slog.Logger) error {
	names, err := hierarchy.LoadSeedFile(path)
	if err != nil {
		return err
	}
	n, err := tree.SeedLevels(ctx, names)
	if err != nil {
		return err
	}
	if n == 0 {
		logger.Info("levels already present, seed file skipped", "path", path)
	} else {
		logger.Info("seeded admin levels", "path", path, "levels", n)
	}
	return nil
}
