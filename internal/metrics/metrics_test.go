package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://www.amazon.com/dp/B08N5WRWNW", "www.amazon.com"},
		{"standard https", "https://WWW.Amazon.com.br/path", "www.amazon.com.br"},
		{"no scheme", "amazon.com/dp/B08N5WRWNW", "amazon.com"},
		{"host with port", "webservices.amazon.com:443", "webservices.amazon.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(strategyAttemptsTotal.WithLabelValues("page_scrape", OutcomeFailure))
	ObserveStrategy("page_scrape", OutcomeFailure)
	if got := testutil.ToFloat64(strategyAttemptsTotal.WithLabelValues("page_scrape", OutcomeFailure)); got != before+1 {
		t.Errorf("expected strategy counter %f, got %f", before+1, got)
	}

	before = testutil.ToFloat64(resolutionsTotal.WithLabelValues("stub"))
	ObserveResolution("stub")
	if got := testutil.ToFloat64(resolutionsTotal.WithLabelValues("stub")); got != before+1 {
		t.Errorf("expected resolution counter %f, got %f", before+1, got)
	}

	before = testutil.ToFloat64(marketplaceAttemptsTotal.WithLabelValues("www.amazon.com", OutcomeTimeout))
	ObserveMarketplaceAttempt("www.amazon.com", OutcomeTimeout, 50*time.Millisecond)
	if got := testutil.ToFloat64(marketplaceAttemptsTotal.WithLabelValues("www.amazon.com", OutcomeTimeout)); got != before+1 {
		t.Errorf("expected marketplace counter %f, got %f", before+1, got)
	}
	if n := testutil.CollectAndCount(marketplaceAttemptDurationSeconds); n <= 0 {
		t.Errorf("expected marketplace latency to be observed, got %d series", n)
	}

	before = testutil.ToFloat64(pageFetchesTotal.WithLabelValues("colly", OutcomeSuccess))
	ObservePageFetch("colly", OutcomeSuccess)
	if got := testutil.ToFloat64(pageFetchesTotal.WithLabelValues("colly", OutcomeSuccess)); got != before+1 {
		t.Errorf("expected page fetch counter %f, got %f", before+1, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://amazon.com", "https://www.amazon.com.br/dp/B08N5WRWNW", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
