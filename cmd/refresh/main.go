// Command refresh runs the price refresh pipeline once and prints the number of rows written.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cartcost/backend/config"
	"github.com/cartcost/backend/internal/app"
	"github.com/cartcost/backend/internal/obs"
)

func main() {
	seedPath := flag.String("seed", "", "optional JSON catalog of stores and ingredients to upsert before refreshing")
	flag.Parse()

	if err := run(*seedPath); err != nil {
		obs.Logger.Error("refresh failed", "error", err)
		os.Exit(1)
	}
}

func run(seedPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	obs.Init(cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if seedPath != "" {
		f, err := os.Open(seedPath)
		if err != nil {
			return fmt.Errorf("open seed catalog: %w", err)
		}
		stores, ingredients, err := app.SeedCatalog(ctx, f, a.Repositories.Stores, a.Repositories.Ingredients)
		f.Close()
		if err != nil {
			return err
		}
		obs.Component("refresh").Info("catalog seeded", "stores", stores, "ingredients", ingredients)
	}

	rows, err := a.Refresh.RefreshAllPrices(ctx)
	if err != nil {
		return err
	}
	fmt.Println(rows)
	return nil
}
