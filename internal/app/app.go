// Package app wires configuration into repositories, price sources and services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cartcost/backend/config"
	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/infrastructure/archive"
	"github.com/cartcost/backend/internal/infrastructure/cache"
	"github.com/cartcost/backend/internal/infrastructure/estimator"
	"github.com/cartcost/backend/internal/infrastructure/events"
	"github.com/cartcost/backend/internal/infrastructure/kroger"
	"github.com/cartcost/backend/internal/infrastructure/metrics"
	"github.com/cartcost/backend/internal/infrastructure/persistence"
	"github.com/cartcost/backend/internal/infrastructure/scraper"
	"github.com/cartcost/backend/internal/infrastructure/walmart"
	"github.com/cartcost/backend/internal/obs"
	"github.com/cartcost/backend/internal/units"
	"github.com/cartcost/backend/internal/usecase"
)

// Chain banners served by each retailer family
var (
	KrogerBanners = []string{
		"kroger", "ralphs", "fred meyer", "king soopers", "smith's", "fry's", "qfc",
		"harris teeter", "dillons", "food 4 less", "mariano's", "pick 'n save", "city market",
	}
	WalmartBanners = []string{"walmart"}
	SafewayBanners = []string{
		"safeway", "vons", "albertsons", "pavilions", "jewel-osco", "acme", "shaw's", "randalls", "tom thumb",
	}
	AldiBanners = []string{"aldi"}
)

// Repositories groups the three storage ports
type Repositories struct {
	Prices      domain.PriceRepository
	Stores      domain.StoreRepository
	Ingredients domain.IngredientRepository
}

// App holds the wired services of one process
type App struct {
	Config       *config.Config
	Repositories Repositories
	Converter    *units.Converter
	Multipliers  *usecase.MultiplierTable
	Resolver     *usecase.PriceResolver
	Refresh      *usecase.RefreshService
	Metrics      *metrics.Metrics
	Bindings     []usecase.SourceBinding

	closers []func() error
	logger  *slog.Logger
}

// New builds every component selected by cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: obs.Component("app")}

	repos, err := a.openRepositories(ctx)
	if err != nil {
		return nil, err
	}
	a.Repositories = repos

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	a.Converter = units.NewConverter(units.Calibration{
		EachGrams:       cfg.Units.EachGrams,
		EachMilliliters: cfg.Units.EachMilliliters,
		Density:         cfg.Units.Density,
	})
	a.Multipliers = usecase.NewMultiplierTable(usecase.DefaultMultiplierData())

	quotes := a.quoteCache()

	resolverCfg := usecase.PriceResolverConfig{
		CandidateLimit: cfg.Resolver.CandidateLimit,
		Converter:      a.Converter,
		Cache:          quotes,
		CacheTTL:       cfg.Resolver.QuoteCacheTTL,
	}
	if a.Metrics != nil {
		resolverCfg.Observer = a.Metrics
	}
	a.Resolver = usecase.NewPriceResolver(repos.Prices, repos.Stores, a.Multipliers, resolverCfg)

	a.Bindings = a.sourceBindings()
	sinks, err := a.sinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	refreshCfg := usecase.RefreshConfig{
		Concurrency:       cfg.Refresh.Concurrency,
		FetchTimeout:      cfg.Refresh.FetchTimeout,
		LookupRadiusMiles: cfg.Refresh.LookupRadiusMiles,
		Converter:         a.Converter,
		Cache:             quotes,
		Sinks:             sinks,
	}
	if a.Metrics != nil {
		refreshCfg.Observer = a.Metrics
	}
	a.Refresh = usecase.NewRefreshService(repos.Prices, repos.Stores, repos.Ingredients, a.Bindings, refreshCfg)

	return a, nil
}

// Scheduler returns the periodic refresh loop configured for this app
func (a *App) Scheduler() *usecase.Scheduler {
	return usecase.NewScheduler(a.Refresh, a.Config.Refresh.Interval, a.Config.Refresh.OnStartup)
}

// Close releases storage and sink connections in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openRepositories(ctx context.Context) (Repositories, error) {
	db := a.Config.Database
	switch db.Driver {
	case "memory":
		store := cache.NewMemoryStore()
		a.logger.Warn("using in-memory price cache, prices are lost on restart")
		return Repositories{Prices: store, Stores: store, Ingredients: store}, nil
	case "sqlite", "postgres":
		store, err := persistence.Open(ctx, persistence.Dialect(db.Driver), db.DSN)
		if err != nil {
			return Repositories{}, fmt.Errorf("open %s price cache: %w", db.Driver, err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("price cache opened", "driver", db.Driver)
		return Repositories{Prices: store, Stores: store, Ingredients: store}, nil
	default:
		return Repositories{}, fmt.Errorf("%w: unknown database driver %q", domain.ErrInvalidRequest, db.Driver)
	}
}

func (a *App) quoteCache() domain.CacheRepository {
	rc := a.Config.Resolver
	if rc.QuoteCacheSize > 0 {
		return cache.NewQuoteCache(rc.QuoteCacheSize, rc.QuoteCacheTTL)
	}
	mc := cache.NewMemoryCache(0)
	a.closers = append(a.closers, func() error {
		mc.Close()
		return nil
	})
	return mc
}

func (a *App) sourceBindings() []usecase.SourceBinding {
	cfg := a.Config
	var bindings []usecase.SourceBinding

	if cfg.KrogerEnabled() {
		k := kroger.New(kroger.Config{
			ClientID:     cfg.Kroger.ClientID,
			ClientSecret: cfg.Kroger.ClientSecret,
			BaseURL:      cfg.Kroger.BaseURL,
			TokenURL:     cfg.Kroger.TokenURL,
			Timeout:      cfg.Kroger.Timeout,
		}, a.Converter)
		bindings = append(bindings, usecase.SourceBinding{Source: k, Family: domain.FamilyKroger, Banners: KrogerBanners})
	} else {
		a.logger.Warn("kroger source disabled", "error", domain.ErrSourceDisabled, "reason", "no client credentials")
	}

	if cfg.Walmart.Enabled {
		w := walmart.New(walmart.Config{BaseURL: cfg.Walmart.BaseURL, Timeout: cfg.Walmart.Timeout}, a.Converter)
		bindings = append(bindings, usecase.SourceBinding{Source: w, Family: domain.FamilyWalmart, Banners: WalmartBanners})
	}
	if cfg.Safeway.Enabled {
		s := scraper.NewSafeway(cfg.Safeway.BaseURL, cfg.Safeway.DefaultStoreID, cfg.Safeway.Timeout)
		bindings = append(bindings, usecase.SourceBinding{Source: s, Family: domain.FamilySafeway, Banners: SafewayBanners})
	}
	if cfg.Aldi.Enabled {
		s := scraper.NewAldi(cfg.Aldi.BaseURL, cfg.Aldi.Timeout)
		bindings = append(bindings, usecase.SourceBinding{Source: s, Family: domain.FamilyAldi, Banners: AldiBanners})
	}
	if cfg.Estimator.Enabled {
		bindings = append(bindings, usecase.SourceBinding{Source: estimator.New(nil), Banners: cfg.Estimator.Banners})
	}

	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.Source.SourceName())
	}
	a.logger.Info("price sources configured", "sources", names)
	return bindings
}

func (a *App) sinks(ctx context.Context) ([]domain.RefreshSink, error) {
	cfg := a.Config
	var sinks []domain.RefreshSink

	if cfg.Archive.Enabled {
		s, err := archive.New(ctx, archive.Config{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			PathStyle: cfg.Archive.PathStyle,
			Prefix:    cfg.Archive.Prefix,

			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("archive sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Events.Enabled {
		s, err := events.New(events.Config{Brokers: cfg.Events.Brokers, Topic: cfg.Events.Topic})
		if err != nil {
			return nil, fmt.Errorf("events sink: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		sinks = append(sinks, s)
	}

	return sinks, nil
}
