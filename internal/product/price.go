package product

import (
	"strconv"
	"strings"
	"unicode"
)

// ParsePrice converts a display price such as "R$ 1.299,90" or "$1,299.99"
// into a Price. The last separator is treated as the decimal mark when it is
// followed by one or two digits; every other separator groups thousands.
func ParsePrice(display string) Price {
	var b strings.Builder
	for _, r := range display {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() == 0 || unicode.IsSpace(r) {
			continue
		}
		if r == '.' || r == ',' {
			b.WriteRune(r)
			continue
		}
		// first non-numeric character after the amount, e.g. a range dash
		break
	}
	s := strings.TrimRight(b.String(), ".,")
	if s == "" {
		return Price{}
	}
	intPart, fracPart := s, ""
	if at := strings.LastIndexAny(s, ".,"); at >= 0 && len(s)-at-1 <= 2 {
		intPart, fracPart = s[:at], s[at+1:]
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	if fracPart != "" {
		intPart += "." + fracPart
	}
	amount, err := strconv.ParseFloat(intPart, 64)
	if err != nil || amount < 0 {
		return Price{}
	}
	return PriceOf(amount)
}
