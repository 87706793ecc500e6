// Package collyfetcher implements the page probe fetch using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/giftlist/linkresolver/internal/metrics"
	"github.com/giftlist/linkresolver/internal/product"
	"github.com/giftlist/linkresolver/internal/scrape"
)

const (
	fetcherName    = "colly"
	defaultTimeout = 15 * time.Second
	// maxRedirects covers short link hops plus locale redirects.
	maxRedirects = 6
	// maxBodyBytes bounds one product page; real pages run 1-3 MB.
	maxBodyBytes = 8 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements scrape.Fetcher using the Colly collector.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	return newWithTransport(cfg, newHTTPTransport())
}

func newWithTransport(cfg Config, base http.RoundTripper) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxBodyBytes),
	)
	// Product links are user-submitted one-off fetches, not a crawl.
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(&pageTransport{base: base})
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(amazonOnlyRedirects)

	return &Fetcher{cfg: cfg, base: c}
}

// amazonOnlyRedirects follows short links into the storefront but refuses to
// leave Amazon.
func amazonOnlyRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	if !product.IsAmazonHost(req.URL.Hostname()) {
		return fmt.Errorf("redirect to %q leaves amazon", req.URL.Hostname())
	}
	return nil
}

// visit accumulates the outcome of one collector run.
type visit struct {
	request  scrape.FetchRequest
	start    time.Time
	response scrape.FetchResponse
	err      error
}

// Fetch executes a single HTTP GET using Colly. Non-2xx responses are
// returned, not treated as errors.
func (f *Fetcher) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	v := &visit{request: request, start: time.Now()}
	collector := f.base.Clone()
	collector.Context = ctx
	attachHooks(collector, v)

	if err := run(ctx, collector, v); err != nil {
		metrics.ObservePageFetch(fetcherName, metrics.OutcomeFailure)
		return scrape.FetchResponse{}, err
	}
	metrics.ObservePageFetch(fetcherName, metrics.OutcomeSuccess)
	return v.response, nil
}

func attachHooks(hooks collectorHooks, v *visit) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(v.request.Headers, r.Headers)
	})

	hooks.OnResponse(func(r *colly.Response) {
		v.response = scrape.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(v.start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		v.err = err
	})
}

func run(ctx context.Context, collector *colly.Collector, v *visit) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(v.request.URL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch %s canceled: %w", v.request.URL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fetch %s: %w", v.request.URL, err)
		}
		if v.err != nil {
			return fmt.Errorf("fetch %s: %w", v.request.URL, v.err)
		}
		return nil
	}
}

// copyHeaders replaces colly's defaults with the caller's values.
func copyHeaders(src http.Header, dst *http.Header) {
	if src == nil || dst == nil {
		return
	}
	if *dst == nil {
		*dst = http.Header{}
	}
	for key, values := range src {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
