// Package main runs the job tracker API server: REST endpoints for
// authentication and job application CRUD, plus the websocket endpoint for
// realtime notifications.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jobtrackhq/jobtrack/internal/app"
	"github.com/jobtrackhq/jobtrack/internal/app/httpapi"
	"github.com/jobtrackhq/jobtrack/internal/app/storage/postgres"
	"github.com/jobtrackhq/jobtrack/internal/config"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("component", "server")

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise storage")
		os.Exit(1)
	}
	defer cleanup()

	application, err := app.New(stores, app.Config{
		TokenSecret: cfg.Auth.Secret,
		TokenTTL:    time.Duration(cfg.Auth.TokenTTL) * time.Minute,
	}, log)
	if err != nil {
		log.WithError(err).Error("initialise application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application, httpapi.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("server stopped")
}

// buildStores selects the persistence backend. An empty DSN keeps everything
// in memory, which suits local development.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database DSN configured; using in-memory storage")
		return app.Stores{}, func() {}, nil
	}

	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	store := postgres.New(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ensure schema: %w", err)
	}

	log.Info("connected to postgres")
	return app.Stores{Users: store, Jobs: store}, func() { db.Close() }, nil
}
