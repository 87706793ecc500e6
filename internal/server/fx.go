// Package server builds the application graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/giftlist/linkresolver/internal/api"
	"github.com/giftlist/linkresolver/internal/clock/system"
	"github.com/giftlist/linkresolver/internal/config"
	collyfetcher "github.com/giftlist/linkresolver/internal/fetcher/colly"
	headlessfetcher "github.com/giftlist/linkresolver/internal/fetcher/headless"
	"github.com/giftlist/linkresolver/internal/hash/sha256"
	"github.com/giftlist/linkresolver/internal/headless/detector"
	"github.com/giftlist/linkresolver/internal/id/uuid"
	"github.com/giftlist/linkresolver/internal/logging"
	"github.com/giftlist/linkresolver/internal/marketplace"
	"github.com/giftlist/linkresolver/internal/policy/ratelimit"
	"github.com/giftlist/linkresolver/internal/product"
	"github.com/giftlist/linkresolver/internal/resolver"
	"github.com/giftlist/linkresolver/internal/scrape"
	"github.com/giftlist/linkresolver/internal/signing"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	resolver   *resolver.Resolver
	dispatcher *marketplace.Dispatcher
	apiServer  *api.Server
	headless   *headlessfetcher.Renderer
}

// Build creates the application's dependencies.
func Build(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(cfg, logger)
}

// BuildWithLogger wires the application around an existing logger.
func BuildWithLogger(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("api_enabled", cfg.Credentials().Complete()),
		zap.Bool("scrape_enabled", cfg.Scrape.Enabled),
		zap.Bool("headless_enabled", cfg.Scrape.Enabled && cfg.Scrape.Headless.Enabled),
	)

	app.dispatcher = setupDispatcher(app)

	var scraper resolver.PageScraper
	if cfg.Scrape.Enabled {
		scraper = setupScraper(app)
	} else {
		logger.Info("page scraping disabled")
	}

	app.resolver = resolver.New(app.dispatcher, scraper, logger.Named("resolver"))
	logger.Info("resolver ready", zap.Strings("strategies", app.resolver.Strategies()))

	app.apiServer = api.NewServer(app.resolver, api.Options{
		Credentials:    cfg.Credentials(),
		Endpoints:      app.dispatcher.Endpoints(),
		Strategies:     app.resolver.Strategies(),
		RequestTimeout: cfg.RequestTimeout(),
		IDs:            uuid.New(),
	}, logger.Named("api"))

	return app, nil
}

func setupDispatcher(app *App) *marketplace.Dispatcher {
	cfg := app.cfg
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Marketplace.RatePerSecond,
		Burst:             cfg.Marketplace.Burst,
	})
	app.logger.Info("marketplace quota",
		zap.Float64("rate_per_second", cfg.Marketplace.RatePerSecond),
		zap.Int("burst", cfg.Marketplace.Burst),
	)
	dispatch := marketplace.New(marketplace.Config{
		Endpoints:      cfg.Marketplace.Endpoints,
		Resources:      cfg.Marketplace.Resources,
		PartnerType:    cfg.Amazon.PartnerType,
		AttemptTimeout: cfg.AttemptTimeout(),
	}, signing.New(sha256.New()), system.New(), limiter, app.logger.Named("marketplace"))
	for _, ep := range dispatch.Endpoints() {
		app.logger.Debug("marketplace endpoint",
			zap.String("host", ep.Host),
			zap.String("region", ep.Region),
			zap.String("marketplace", ep.MarketplaceID),
		)
	}
	return dispatch
}

func setupScraper(app *App) *scrape.Scraper {
	cfg := app.cfg
	userAgent := cfg.Scrape.UserAgent
	if userAgent == "" {
		userAgent = scrape.DefaultUserAgent
	}
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: userAgent,
		Timeout:   cfg.ScrapeTimeout(),
	})
	app.logger.Info("using colly probe fetcher", zap.String("user_agent", userAgent))

	var renderer scrape.Fetcher
	var detect scrape.Detector
	if cfg.Scrape.Headless.Enabled {
		headless, err := headlessfetcher.New(headlessfetcher.Config{
			MaxTabs:           cfg.Scrape.Headless.MaxParallel,
			UserAgent:         userAgent,
			NavigationTimeout: cfg.NavTimeout(),
			BlockMedia:        true,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = headless
			renderer = headless
			detect = detector.NewHeuristic(cfg.Scrape.Headless.PromotionBodyLength)
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Scrape.Headless.MaxParallel))
		}
	}

	return scrape.New(scrape.Config{UserAgent: userAgent}, probe, renderer, detect, app.logger.Named("scrape"))
}

// Handler exposes the HTTP handler for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Resolve validates rawURL and runs the resolver once with the configured credentials.
func (a *App) Resolve(ctx context.Context, rawURL string) (resolver.Result, error) {
	sourceURL, err := product.ValidateURL(rawURL)
	if err != nil {
		return resolver.Result{}, err
	}
	return a.resolver.ResolveDetailed(ctx, product.Query{SourceURL: sourceURL}, a.cfg.Credentials()), nil
}

// Run serves HTTP and blocks until the context is canceled or a signal arrives.
// The caller still owns Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.logger.Info("http server stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases the headless browser and flushes the logger.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
