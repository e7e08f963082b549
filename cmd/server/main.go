package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartcost/backend/config"
	"github.com/cartcost/backend/internal/app"
	httpDelivery "github.com/cartcost/backend/internal/delivery/http"
	"github.com/cartcost/backend/internal/obs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		obs.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	obs.Init(cfg.Server.Environment)
	logger := obs.Component("server")

	logger.Info("starting CartCost backend",
		"version", "1.0.0",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Periodic refresh runs until shutdown
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		a.Scheduler().Run(ctx)
	}()

	handler := httpDelivery.NewHandler(a.Resolver, a.Refresh, a.Multipliers, a.Converter)
	router := httpDelivery.SetupRouter(cfg, handler, a.Metrics)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-schedulerDone
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-schedulerDone
	return nil
}
