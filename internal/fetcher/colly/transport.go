package collyfetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

var handshakeRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// pageTransport retries GETs that hit a transient TLS handshake failure and
// decodes gzip and brotli bodies, since sending our own Accept-Encoding turns
// off net/http's transparent decompression.
type pageTransport struct {
	base http.RoundTripper
}

func (t *pageTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("page transport received nil request")
	}
	resp, err := t.roundTripWithRetry(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (t *pageTransport) roundTripWithRetry(req *http.Request) (*http.Response, error) {
	retryable := req.Method == http.MethodGet && req.Body == nil
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !retryable || !isTransientTLSError(err) || attempt >= len(handshakeRetryBackoff) {
			return nil, fmt.Errorf("page roundtrip: %w", err)
		}
		if err := sleepWithContext(req.Context(), handshakeRetryBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("page roundtrip backoff sleep: %w", err)
		}
	}
}

// decodeBody replaces a compressed body with its decoded stream and drops the
// encoding headers so later readers see plain bytes.
func decodeBody(resp *http.Response) error {
	var (
		reader io.Reader
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		reader, err = gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip body: %w", err)
		}
	case "br":
		reader = brotli.NewReader(resp.Body)
	default:
		return nil
	}
	resp.Body = &decodedBody{Reader: reader, closer: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type decodedBody struct {
	io.Reader
	closer io.Closer
}

func (b *decodedBody) Close() error {
	if err := b.closer.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return strings.Contains(err.Error(), "handshake")
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
