package product

import "time"

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes the digests used by request signing.
type Hasher interface {
	Hash(data []byte) string
	HMAC(key, data []byte) []byte
}
