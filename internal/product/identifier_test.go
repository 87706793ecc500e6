package product

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractIdentifier_SupportedShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		want    Identifier
		pattern string
	}{
		{name: "dp", url: "https://amazon.com/dp/B08N5WRWNW", want: "B08N5WRWNW", pattern: "dp"},
		{name: "dp with slug and ref", url: "https://www.amazon.com.br/Echo-Dot/dp/B08N5WRWNW/ref=sr_1_1?keywords=echo", want: "B08N5WRWNW", pattern: "dp"},
		{name: "gp product", url: "https://www.amazon.com/gp/product/B07XJ8C8F5", want: "B07XJ8C8F5", pattern: "gp-product"},
		{name: "gp product query", url: "https://www.amazon.com/gp/product/B07XJ8C8F5?psc=1", want: "B07XJ8C8F5", pattern: "gp-product"},
		{name: "mobile", url: "https://www.amazon.com/gp/aw/d/B07XJ8C8F5", want: "B07XJ8C8F5", pattern: "gp-aw-d"},
		{name: "offer listing", url: "https://www.amazon.com/gp/offer-listing/B07XJ8C8F5/", want: "B07XJ8C8F5", pattern: "gp-offer-listing"},
		{name: "asin path", url: "https://www.amazon.com/exec/obidos/ASIN/0316769177", want: "0316769177", pattern: "asin-path"},
		{name: "reviews", url: "https://www.amazon.com/product-reviews/B07XJ8C8F5/ref=cm_cr", want: "B07XJ8C8F5", pattern: "product-reviews"},
		{name: "ref trailer", url: "https://www.amazon.com/ref=twister_abc/B07XJ8C8F5", want: "B07XJ8C8F5", pattern: "ref-trailer"},
		{name: "asin query", url: "https://www.amazon.com/s?asin=B07XJ8C8F5", want: "B07XJ8C8F5", pattern: "asin-query"},
		{name: "bare segment", url: "https://www.amazon.com/Kindle/B07XJ8C8F5", want: "B07XJ8C8F5", pattern: "bare-segment"},
		{name: "lowercase dp", url: "https://amazon.com/dp/b08n5wrwnw", want: "B08N5WRWNW", pattern: "dp"},
		{name: "no scheme", url: "amazon.com/dp/B08N5WRWNW", want: "B08N5WRWNW", pattern: "dp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractIdentifier(tt.url)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.pattern, PatternFor(tt.url))
		})
	}
}

func TestExtractIdentifier_NoMatch(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"https://www.amazon.com/",
		"https://www.amazon.com/gp/help/customer/display.html",
		"https://www.amazon.com/s?k=headphones",
		"https://www.amazon.com/dp/SHORT",
		"https://www.amazon.com/dp/B08N5WRWNWX",
	} {
		id, ok := ExtractIdentifier(raw)
		require.False(t, ok, raw)
		require.Empty(t, id, raw)
	}
}

func TestExtractIdentifier_SpecificBeforeGeneric(t *testing.T) {
	t.Parallel()

	// The bare B0 segment must not win over the /dp/ identifier.
	got, ok := ExtractIdentifier("https://www.amazon.com/B0AAAAAAAA/dp/B08N5WRWNW")
	require.True(t, ok)
	require.Equal(t, Identifier("B08N5WRWNW"), got)
}
