package product

import (
	"net/url"
	"strings"
)

// AffiliateQueryParam is the query parameter that carries the partner tag.
const AffiliateQueryParam = "tag"

// AffiliateURL sets the partner tag on originalURL, replacing any tag already
// present and keeping the path and every other parameter. An empty tag or an
// unparseable URL returns originalURL unchanged.
func AffiliateURL(originalURL, partnerTag string) string {
	if partnerTag == "" {
		return originalURL
	}
	u, err := url.Parse(originalURL)
	if err != nil {
		return originalURL
	}
	u.RawQuery = setTag(u.RawQuery, partnerTag)
	return u.String()
}

// setTag replaces the first tag pair in place and drops any repeats. Every
// other pair keeps its position and its original escaping.
func setTag(rawQuery, partnerTag string) string {
	tagPair := AffiliateQueryParam + "=" + url.QueryEscape(partnerTag)
	pairs := strings.Split(rawQuery, "&")
	out := make([]string, 0, len(pairs)+1)
	placed := false
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if key != AffiliateQueryParam {
			out = append(out, pair)
			continue
		}
		if !placed {
			out = append(out, tagPair)
			placed = true
		}
	}
	if !placed {
		out = append(out, tagPair)
	}
	return strings.Join(out, "&")
}
