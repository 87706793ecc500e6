package product

import "errors"

// Failure kinds raised below the HTTP boundary. Only ErrInvalidURL reaches callers;
// the rest are absorbed by the next stage of resolution.
var (
	ErrInvalidURL         = errors.New("invalid amazon url")
	ErrNoIdentifier       = errors.New("no product identifier found")
	ErrCredentialsMissing = errors.New("api credentials missing")
	ErrEndpointFailure    = errors.New("marketplace endpoint failed")
	ErrAllEndpointsFailed = errors.New("all marketplace endpoints failed")
	ErrScrapeFailure      = errors.New("page scrape failed")
	ErrSigningFault       = errors.New("request signing failed")
)
