package product

import (
	"fmt"
	"net/url"
	"strings"
)

// shortLinkHosts are Amazon redirectors that carry no identifier in the path.
var shortLinkHosts = map[string]struct{}{
	"amzn.to":  {},
	"amzn.com": {},
	"amzn.eu":  {},
	"a.co":     {},
}

// storefrontSuffixes are the public suffixes Amazon runs retail storefronts on.
var storefrontSuffixes = map[string]struct{}{
	"com": {}, "ca": {}, "com.mx": {}, "com.br": {},
	"co.uk": {}, "ie": {}, "de": {}, "fr": {}, "it": {}, "es": {}, "nl": {}, "se": {}, "pl": {}, "com.be": {},
	"com.tr": {}, "ae": {}, "sa": {}, "eg": {}, "in": {}, "co.za": {}, "com.ng": {},
	"co.jp": {}, "sg": {}, "com.au": {}, "cn": {},
}

// ValidateURL checks that rawURL names a page on a supported Amazon domain and
// returns it normalized with an explicit scheme. The error wraps ErrInvalidURL.
func ValidateURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(withScheme(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if !IsAmazonHost(u.Hostname()) {
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidURL, u.Hostname())
	}
	return u.String(), nil
}

// IsAmazonHost reports whether host is an Amazon storefront or short-link domain.
func IsAmazonHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	if _, ok := shortLinkHosts[host]; ok {
		return true
	}
	labels := strings.Split(host, ".")
	for i, label := range labels {
		if label != "amazon" {
			continue
		}
		// amazon.<storefront suffix>, with any subdomain in front.
		if _, ok := storefrontSuffixes[strings.Join(labels[i+1:], ".")]; ok {
			return true
		}
	}
	return false
}

func withScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}
