// Package product defines the types shared by every stage of link resolution:
// the query, the extracted identifier, credentials, marketplace endpoints, the
// partial records produced by acquisition strategies, and the normalized
// record handed back to callers.
//
// It also hosts the pure helpers that sit at either end of resolution:
//   - ExtractIdentifier walks a declared, ordered pattern table.
//   - ValidateURL decides whether a URL belongs to a supported Amazon domain.
//   - Normalize fills every missing field with its documented fallback and
//     computes the affiliate link via AffiliateURL.
package product
