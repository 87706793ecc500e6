package marketplace

import (
	"strings"

	"github.com/giftlist/linkresolver/internal/product"
)

// Product Advertising API 5.0 GetItems constants.
const (
	ServiceName        = "ProductAdvertisingAPI"
	GetItemsPath       = "/paapi5/getitems"
	GetItemsTarget     = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.GetItems"
	ContentEncoding    = "amz-1.0"
	ContentType        = "application/json; charset=utf-8"
	DefaultPartnerType = "Associates"
)

// DefaultResources are the item fields requested from GetItems.
var DefaultResources = []string{
	"Images.Primary.Large",
	"ItemInfo.Title",
	"ItemInfo.Features",
	"Offers.Listings.Price",
}

// DefaultEndpoints is the ordered marketplace list used when none is configured.
var DefaultEndpoints = []product.Endpoint{
	{Host: "webservices.amazon.com.br", Region: "us-east-1", MarketplaceID: "www.amazon.com.br"},
	{Host: "webservices.amazon.com", Region: "us-east-1", MarketplaceID: "www.amazon.com"},
	{Host: "webservices.amazon.co.uk", Region: "eu-west-1", MarketplaceID: "www.amazon.co.uk"},
}

type getItemsRequest struct {
	ItemIDs     []string `json:"ItemIds"`
	Resources   []string `json:"Resources"`
	PartnerTag  string   `json:"PartnerTag"`
	PartnerType string   `json:"PartnerType"`
	Marketplace string   `json:"Marketplace"`
}

type getItemsResponse struct {
	ItemsResult *struct {
		Items []item `json:"Items"`
	} `json:"ItemsResult"`
	Errors []apiError `json:"Errors"`
}

type apiError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type item struct {
	ASIN     string `json:"ASIN"`
	ItemInfo *struct {
		Title *struct {
			DisplayValue string `json:"DisplayValue"`
		} `json:"Title"`
		Features *struct {
			DisplayValues []string `json:"DisplayValues"`
		} `json:"Features"`
	} `json:"ItemInfo"`
	Offers *struct {
		Listings []struct {
			Price *struct {
				Amount        *float64 `json:"Amount"`
				Currency      string   `json:"Currency"`
				DisplayAmount string   `json:"DisplayAmount"`
			} `json:"Price"`
		} `json:"Listings"`
	} `json:"Offers"`
	Images *struct {
		Primary *struct {
			Large  *image `json:"Large"`
			Medium *image `json:"Medium"`
		} `json:"Primary"`
	} `json:"Images"`
}

type image struct {
	URL string `json:"URL"`
}

// items returns the item results, or nil when the response carried none.
func (r getItemsResponse) items() []item {
	if r.ItemsResult == nil {
		return nil
	}
	return r.ItemsResult.Items
}

func (r getItemsResponse) errorSummary() string {
	if len(r.Errors) == 0 {
		return "no item results"
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Code+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// toPartial maps one API item onto the strategy output shape.
func (it item) toPartial() product.PartialRecord {
	var rec product.PartialRecord
	if info := it.ItemInfo; info != nil {
		if info.Title != nil {
			rec.Title = info.Title.DisplayValue
		}
		if info.Features != nil {
			rec.Description = strings.Join(info.Features.DisplayValues, " ")
		}
	}
	if it.Offers != nil {
		for _, listing := range it.Offers.Listings {
			if listing.Price == nil {
				continue
			}
			if listing.Price.Amount != nil {
				rec.Price = product.PriceOf(*listing.Price.Amount)
			} else {
				rec.Price = product.ParsePrice(listing.Price.DisplayAmount)
			}
			if rec.Price.Valid {
				break
			}
		}
	}
	if it.Images != nil && it.Images.Primary != nil {
		switch {
		case it.Images.Primary.Large != nil && it.Images.Primary.Large.URL != "":
			rec.ImageURL = it.Images.Primary.Large.URL
		case it.Images.Primary.Medium != nil:
			rec.ImageURL = it.Images.Primary.Medium.URL
		}
	}
	return rec
}
