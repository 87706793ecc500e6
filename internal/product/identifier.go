package product

import (
	"net/url"
	"regexp"
	"strings"
)

// idBoundary terminates an identifier: a path separator, query, fragment, or end of input.
const idBoundary = `(?:[/?#]|$)`

// identifierPattern pairs a URL shape with the expression that extracts the
// identifier from it. The first capture group is the identifier.
type identifierPattern struct {
	name  string
	match func(u *url.URL, raw string) (string, bool)
}

// identifierPatterns is evaluated in order and the first match wins. Specific
// shapes precede the generic trailers so an unrelated segment is never picked
// over a real product path.
var identifierPatterns = []identifierPattern{
	pathPattern("dp", `(?i)/dp/([A-Z0-9]{10})`+idBoundary),
	pathPattern("gp-product", `(?i)/gp/product/([A-Z0-9]{10})`+idBoundary),
	pathPattern("gp-aw-d", `(?i)/gp/aw/d/([A-Z0-9]{10})`+idBoundary),
	pathPattern("gp-offer-listing", `(?i)/gp/offer-listing/([A-Z0-9]{10})`+idBoundary),
	pathPattern("asin-path", `/ASIN/([A-Za-z0-9]{10})`+idBoundary),
	pathPattern("product-reviews", `(?i)/product-reviews/([A-Z0-9]{10})`+idBoundary),
	pathPattern("ref-trailer", `/ref=[^/?#]*/([A-Za-z0-9]{10})`+idBoundary),
	{name: "asin-query", match: matchASINQuery},
	pathPattern("bare-segment", `/(B0[A-Za-z0-9]{8})`+idBoundary),
}

func pathPattern(name, expr string) identifierPattern {
	re := regexp.MustCompile(expr)
	return identifierPattern{
		name: name,
		match: func(u *url.URL, raw string) (string, bool) {
			subject := raw
			if u != nil {
				subject = u.EscapedPath()
			}
			m := re.FindStringSubmatch(subject)
			if len(m) < 2 {
				return "", false
			}
			return m[1], true
		},
	}
}

var asinValue = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)

func matchASINQuery(u *url.URL, _ string) (string, bool) {
	if u == nil {
		return "", false
	}
	q := u.Query()
	for _, key := range []string{"asin", "ASIN"} {
		if v := q.Get(key); asinValue.MatchString(v) {
			return v, true
		}
	}
	return "", false
}

// ExtractIdentifier returns the product identifier embedded in rawURL. The
// second return value is false when no pattern matched; that is a normal
// outcome, not an error.
func ExtractIdentifier(rawURL string) (Identifier, bool) {
	id, _, ok := extractWithPattern(rawURL)
	return id, ok
}

// extractWithPattern also reports which pattern matched, for logging and tests.
func extractWithPattern(rawURL string) (Identifier, string, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", "", false
	}
	u, err := url.Parse(withScheme(raw))
	if err != nil {
		u = nil
	}
	for _, p := range identifierPatterns {
		if v, ok := p.match(u, raw); ok {
			return Identifier(strings.ToUpper(v)), p.name, true
		}
	}
	return "", "", false
}

// PatternFor returns the name of the pattern that extracts an identifier from
// rawURL, or "" when none does.
func PatternFor(rawURL string) string {
	_, name, _ := extractWithPattern(rawURL)
	return name
}
