package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/giftlist/linkresolver/internal/product"
)

// candidate is one place a field may live on a product page. An empty attr
// reads the element text.
type candidate struct {
	selector string
	attr     string
}

// Candidates are tried in order and the first non-empty value wins.
var (
	titleCandidates = []candidate{
		{selector: "#productTitle"},
		{selector: "#title"},
		{selector: `meta[property="og:title"]`, attr: "content"},
		{selector: "title"},
	}
	priceCandidates = []candidate{
		{selector: ".a-price .a-offscreen"},
		{selector: "#priceblock_ourprice"},
		{selector: "#priceblock_dealprice"},
		{selector: "#corePrice_feature_div .a-offscreen"},
		{selector: "span.a-price-whole"},
	}
	imageCandidates = []candidate{
		{selector: "#landingImage", attr: "data-old-hires"},
		{selector: "#landingImage", attr: "src"},
		{selector: "#imgBlkFront", attr: "src"},
		{selector: `meta[property="og:image"]`, attr: "content"},
	}
	descriptionCandidates = []candidate{
		{selector: "#productDescription"},
		{selector: "#feature-bullets"},
		{selector: `meta[name="description"]`, attr: "content"},
	}
)

// Extract parses an HTML product page. Relative image URLs resolve against
// pageURL. Fields that no candidate matches stay empty.
func Extract(body []byte, pageURL string) (product.PartialRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return product.PartialRecord{}, fmt.Errorf("parse html: %w", err)
	}

	rec := product.PartialRecord{
		Title:       firstMatch(doc, titleCandidates),
		ImageURL:    resolveReference(pageURL, firstImage(doc)),
		Description: firstMatch(doc, descriptionCandidates),
	}
	for _, c := range priceCandidates {
		if price := product.ParsePrice(lookup(doc, c)); price.Valid {
			rec.Price = price
			break
		}
	}
	return rec, nil
}

func firstMatch(doc *goquery.Document, candidates []candidate) string {
	for _, c := range candidates {
		if v := lookup(doc, c); v != "" {
			return v
		}
	}
	return ""
}

// firstImage skips inline data URIs, which product pages use as lazy-load placeholders.
func firstImage(doc *goquery.Document) string {
	for _, c := range imageCandidates {
		if v := lookup(doc, c); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func lookup(doc *goquery.Document, c candidate) string {
	sel := doc.Find(c.selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if c.attr != "" {
		return strings.TrimSpace(sel.AttrOr(c.attr, ""))
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func resolveReference(pageURL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "//") {
		return ref
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
