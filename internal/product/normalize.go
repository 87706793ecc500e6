package product

import "strings"

// Normalize maps whatever a strategy produced onto the fixed Record shape,
// substituting the documented fallback for each missing field, and computes
// the affiliate link from sourceURL.
func Normalize(partial PartialRecord, sourceURL, partnerTag string) Record {
	rec := Record{
		Title:        orDefault(cleanText(partial.Title), FallbackTitle),
		Price:        partial.Price,
		ImageURL:     orDefault(cleanImageURL(partial.ImageURL), FallbackImageURL),
		Description:  orDefault(cleanText(partial.Description), FallbackDescription),
		AffiliateURL: AffiliateURL(sourceURL, partnerTag),
	}
	if rec.Price.Valid && rec.Price.Amount < 0 {
		rec.Price = Price{}
	}
	return rec
}

// StubRecord is the terminal partial record used when nothing else worked.
func StubRecord() PartialRecord {
	return PartialRecord{
		Title:       FallbackTitle,
		ImageURL:    FallbackImageURL,
		Description: FallbackDescription,
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanImageURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "//") {
		return "https:" + s
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
