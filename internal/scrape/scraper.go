package scrape

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/giftlist/linkresolver/internal/product"
)

// Config controls the scraper.
type Config struct {
	UserAgent string
}

// Scraper fetches a product page with a plain HTTP probe, optionally
// re-renders it in a headless browser, and extracts product fields.
type Scraper struct {
	cfg      Config
	probe    Fetcher
	renderer Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a Scraper. renderer and detector may be nil, which disables
// headless promotion.
func New(cfg Config, probe Fetcher, renderer Fetcher, detector Detector, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		cfg:      cfg,
		probe:    probe,
		renderer: renderer,
		detector: detector,
		logger:   logger,
	}
}

// Scrape returns the fields found on the page at pageURL. Fetch errors,
// non-2xx statuses, robot-check pages, and pages yielding no field at all
// fail with product.ErrScrapeFailure.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (product.PartialRecord, error) {
	if s.probe == nil {
		return product.PartialRecord{}, fmt.Errorf("%w: no fetcher configured", product.ErrScrapeFailure)
	}
	req := FetchRequest{URL: pageURL, Headers: BrowserHeaders(s.cfg.UserAgent)}

	resp, err := s.probe.Fetch(ctx, req)
	if err != nil {
		return product.PartialRecord{}, fmt.Errorf("%w: fetch: %w", product.ErrScrapeFailure, err)
	}
	if s.shouldRender(resp) {
		rendered, renderErr := s.renderer.Fetch(ctx, req)
		if renderErr != nil {
			s.logger.Warn("headless render failed, using probe response",
				zap.String("url", pageURL),
				zap.Error(renderErr),
			)
		} else {
			resp = rendered
		}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return product.PartialRecord{}, fmt.Errorf("%w: status %d", product.ErrScrapeFailure, resp.StatusCode)
	}
	if IsBotWall(resp.Body) {
		return product.PartialRecord{}, fmt.Errorf("%w: robot check page", product.ErrScrapeFailure)
	}

	pageBase := resp.URL
	if pageBase == "" {
		pageBase = pageURL
	}
	rec, err := Extract(resp.Body, pageBase)
	if err != nil {
		return product.PartialRecord{}, fmt.Errorf("%w: %w", product.ErrScrapeFailure, err)
	}
	if rec.IsEmpty() {
		return product.PartialRecord{}, fmt.Errorf("%w: no product fields on page", product.ErrScrapeFailure)
	}
	s.logger.Debug("page scraped",
		zap.String("url", pageBase),
		zap.Int("status", resp.StatusCode),
		zap.Bool("headless", resp.UsedHeadless),
		zap.Duration("duration", resp.Duration),
	)
	return rec, nil
}

func (s *Scraper) shouldRender(probe FetchResponse) bool {
	return s.renderer != nil && s.detector != nil && s.detector.ShouldPromote(probe)
}
