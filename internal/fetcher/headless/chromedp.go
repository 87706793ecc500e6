// Package headless renders product pages in headless Chrome when the plain
// probe fetch comes back as a bot wall or script shell.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/giftlist/linkresolver/internal/metrics"
	"github.com/giftlist/linkresolver/internal/scrape"
)

const (
	fetcherName          = "chromedp"
	defaultNavTimeout    = 20 * time.Second
	defaultSettleTimeout = 3 * time.Second
	settlePollInterval   = 100 * time.Millisecond
)

// productReadyExpr turns truthy once client-side rendering produced the
// product layout the extractor reads from.
const productReadyExpr = `document.querySelector('#productTitle, #title, #dp') !== null`

// blockedResources never carry a field the extractor reads. Image URLs come
// from attributes, so the images themselves need not load.
var blockedResources = []string{
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.mp4", "*.m3u8",
}

// browserOwnedHeaders are set by Chrome itself and must not be overridden.
var browserOwnedHeaders = map[string]struct{}{
	"User-Agent":      {},
	"Accept-Encoding": {},
}

// Config controls the renderer.
type Config struct {
	// MaxTabs bounds concurrent renders. Zero means unbounded.
	MaxTabs           int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleTimeout is how long a loaded page may take to show the product layout.
	SettleTimeout time.Duration
	BlockMedia    bool
}

// Renderer implements scrape.Fetcher by loading pages in a shared headless browser.
type Renderer struct {
	cfg      Config
	tabs     chan struct{}
	browser  context.Context
	shutdown context.CancelFunc
}

// New starts the browser allocator. Chrome itself launches on the first render.
func New(cfg Config) (*Renderer, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0, got %d", cfg.MaxTabs)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	var tabs chan struct{}
	if cfg.MaxTabs > 0 {
		tabs = make(chan struct{}, cfg.MaxTabs)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.WindowSize(1366, 900),
	)
	browser, shutdown := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:      cfg,
		tabs:     tabs,
		browser:  browser,
		shutdown: shutdown,
	}, nil
}

// Close stops the browser.
func (r *Renderer) Close() {
	r.shutdown()
}

// Fetch renders request.URL in a fresh tab and returns the resulting DOM.
func (r *Renderer) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	release, err := r.acquireTab(ctx)
	if err != nil {
		metrics.ObservePageFetch(fetcherName, metrics.OutcomeSkipped)
		return scrape.FetchResponse{}, err
	}
	defer release()

	tabCtx, closeTab := chromedp.NewContext(r.browser)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	page, err := r.render(tabCtx, request)
	if err != nil {
		metrics.ObservePageFetch(fetcherName, metrics.OutcomeFailure)
		return scrape.FetchResponse{}, err
	}
	metrics.ObservePageFetch(fetcherName, metrics.OutcomeSuccess)

	status, headers, finalURL := doc.result(request.URL, page.location)
	return scrape.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(page.html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

type renderedPage struct {
	html     string
	location string
}

func (r *Renderer) render(ctx context.Context, request scrape.FetchRequest) (renderedPage, error) {
	var page renderedPage
	err := chromedp.Run(ctx,
		r.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		r.waitForProduct(),
		chromedp.Location(&page.location),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
	if err != nil {
		return renderedPage{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	return page, nil
}

func (r *Renderer) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.BlockMedia {
			if err := network.SetBlockedURLs(blockedResources).Do(ctx); err != nil {
				return fmt.Errorf("block media: %w", err)
			}
		}
		if ua := r.userAgent(headers); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := extraHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// waitForProduct gives client-side rendering a bounded window to produce the
// product layout. A page that never does is returned as loaded.
func (r *Renderer) waitForProduct() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ready bool
		err := chromedp.Poll(productReadyExpr, &ready,
			chromedp.WithPollingInterval(settlePollInterval),
			chromedp.WithPollingTimeout(r.cfg.SettleTimeout),
		).Do(ctx)
		if err == nil || errors.Is(err, chromedp.ErrPollingTimeout) {
			return nil
		}
		return fmt.Errorf("wait for product layout: %w", err)
	})
}

func (r *Renderer) userAgent(headers http.Header) string {
	if r.cfg.UserAgent != "" {
		return r.cfg.UserAgent
	}
	return headers.Get("User-Agent")
}

func (r *Renderer) acquireTab(ctx context.Context) (func(), error) {
	if r.tabs == nil {
		return func() {}, nil
	}
	select {
	case r.tabs <- struct{}{}:
		return func() { <-r.tabs }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
}

// documentResponse keeps the status and headers of the last top-level
// document the tab received. Subresources are ignored.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := headersFromNetwork(e.Response.Headers)
	d.mu.Lock()
	d.status = int(e.Response.Status)
	d.headers = headers
	d.url = e.Response.URL
	d.mu.Unlock()
}

// result prefers the tab location over the document URL since script
// redirects do not produce a new response.
func (d *documentResponse) result(requestURL, location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := d.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	finalURL := location
	if finalURL == "" || finalURL == "about:blank" {
		finalURL = d.url
	}
	if finalURL == "" {
		finalURL = requestURL
	}
	return status, headers, finalURL
}

// headersFromNetwork converts devtools headers, where Chrome joins repeated
// values with newlines.
func headersFromNetwork(src network.Headers) http.Header {
	headers := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			for _, part := range strings.Split(v, "\n") {
				headers.Add(key, part)
			}
		case []any:
			for _, part := range v {
				headers.Add(key, fmt.Sprint(part))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}

func extraHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if _, owned := browserOwnedHeaders[http.CanonicalHeaderKey(key)]; owned {
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
