package product

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Documented fallback values used whenever a strategy leaves a field empty.
const (
	FallbackTitle       = "Produto da Amazon"
	FallbackImageURL    = "https://via.placeholder.com/400x400?text=Produto"
	FallbackDescription = "Produto processado automaticamente"
	UnavailablePrice    = "unavailable"
)

// Query is the immutable input to a resolution.
type Query struct {
	SourceURL string
}

// Identifier is the 10-character catalog token (ASIN) naming a product.
type Identifier string

// String returns the identifier as a plain string.
func (id Identifier) String() string {
	return string(id)
}

// Credentials hold the Product Advertising API keys and the affiliate tag.
// A zero value is valid and disables the API strategy.
type Credentials struct {
	AccessKey  string
	SecretKey  string
	PartnerTag string
}

// CanSign reports whether the access and secret keys are both present.
func (c Credentials) CanSign() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Complete reports whether every value the API strategy needs is present.
func (c Credentials) Complete() bool {
	return c.CanSign() && c.PartnerTag != ""
}

// Endpoint is one regional deployment of the product API.
type Endpoint struct {
	Host          string `mapstructure:"host" json:"host"`
	Region        string `mapstructure:"region" json:"region"`
	MarketplaceID string `mapstructure:"marketplace_id" json:"marketplace_id"`
	// BaseURL overrides where requests are sent. The signature always covers Host.
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
}

// URL returns the absolute URL for path on this endpoint.
func (e Endpoint) URL(path string) string {
	base := e.BaseURL
	if base == "" {
		base = "https://" + e.Host
	}
	return strings.TrimRight(base, "/") + path
}

// Price is a product price that may be unknown.
type Price struct {
	Amount float64
	Valid  bool
}

// PriceOf returns a valid price for amount.
func PriceOf(amount float64) Price {
	return Price{Amount: amount, Valid: true}
}

// MarshalJSON encodes a valid price as a number and anything else as "unavailable".
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return json.Marshal(UnavailablePrice)
	}
	return json.Marshal(p.Amount)
}

// UnmarshalJSON accepts a number or the "unavailable" marker.
func (p *Price) UnmarshalJSON(data []byte) error {
	var amount float64
	if err := json.Unmarshal(data, &amount); err == nil {
		*p = PriceOf(amount)
		return nil
	}
	var marker string
	if err := json.Unmarshal(data, &marker); err != nil {
		return fmt.Errorf("decode price: %w", err)
	}
	if marker != UnavailablePrice {
		return fmt.Errorf("decode price: unexpected value %q", marker)
	}
	*p = Price{}
	return nil
}

// String renders the price for logs.
func (p Price) String() string {
	if !p.Valid {
		return UnavailablePrice
	}
	return fmt.Sprintf("%.2f", p.Amount)
}

// PartialRecord is what a single acquisition strategy produced. Any field may be empty.
type PartialRecord struct {
	Title       string
	Price       Price
	ImageURL    string
	Description string
}

// IsEmpty reports whether the strategy produced nothing usable.
func (p PartialRecord) IsEmpty() bool {
	return strings.TrimSpace(p.Title) == "" &&
		!p.Price.Valid &&
		strings.TrimSpace(p.ImageURL) == "" &&
		strings.TrimSpace(p.Description) == ""
}

// Record is the normalized product returned to callers. Every field is always set.
type Record struct {
	Title        string `json:"title"`
	Price        Price  `json:"price"`
	ImageURL     string `json:"image_url"`
	Description  string `json:"description"`
	AffiliateURL string `json:"affiliate_url"`
}
