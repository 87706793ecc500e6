// Package signing implements the derived-key request signature (AWS Signature
// Version 4) required by the Product Advertising API.
//
// Signing runs in four steps:
//  1. canonical request: method, URI, query, headers, signed-header list, body hash
//  2. string-to-sign: algorithm, timestamp, credential scope, canonical request hash
//  3. signing key: HMAC chain over date, region, service, request type
//  4. signature: hex HMAC of the string-to-sign under the signing key
//
// Sign is pure. The caller captures the timestamp once and the signer writes it
// to X-Amz-Date itself, so the header and the string-to-sign cannot disagree.
package signing

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/giftlist/linkresolver/internal/hash/sha256"
	"github.com/giftlist/linkresolver/internal/product"
)

// Protocol constants.
const (
	Algorithm   = "AWS4-HMAC-SHA256"
	RequestType = "aws4_request"
	TimeFormat  = "20060102T150405Z"
	DateFormat  = "20060102"

	HeaderDate          = "X-Amz-Date"
	HeaderAuthorization = "Authorization"
)

// Request is the unsigned request.
type Request struct {
	Method string
	Host   string
	Path   string
	Query  url.Values
	// Headers to sign in addition to host and x-amz-date.
	Headers http.Header
	Body    []byte
	// BaseURL replaces https://Host when building the send URL.
	BaseURL string
}

// Scope names the region and service the signature is valid for.
type Scope struct {
	Region  string
	Service string
}

// SignedRequest is ready to send. The signature is in the Authorization header.
type SignedRequest struct {
	Method    string
	URL       string
	Headers   http.Header
	Body      []byte
	Timestamp time.Time
	// Signature is the lowercase hex signature embedded in Authorization.
	Signature string
}

// Signer computes request signatures.
type Signer struct {
	hasher product.Hasher
}

// New builds a Signer. A nil hasher selects SHA-256.
func New(hasher product.Hasher) *Signer {
	if hasher == nil {
		hasher = sha256.New()
	}
	return &Signer{hasher: hasher}
}

// Sign signs req for scope at timestamp t. Errors wrap product.ErrSigningFault.
func (s *Signer) Sign(req Request, creds product.Credentials, scope Scope, t time.Time) (SignedRequest, error) {
	if err := validate(req, creds, scope, t); err != nil {
		return SignedRequest{}, err
	}
	t = t.UTC()
	amzDate := t.Format(TimeFormat)

	headers := cloneHeader(req.Headers)
	headers.Set(HeaderDate, amzDate)

	canonicalHeaders, signedHeaders := canonicalizeHeaders(headers, req.Host)
	canonical := s.canonicalRequest(req, canonicalHeaders, signedHeaders)
	credentialScope := strings.Join([]string{t.Format(DateFormat), scope.Region, scope.Service, RequestType}, "/")
	toSign := strings.Join([]string{
		Algorithm,
		amzDate,
		credentialScope,
		s.hasher.Hash([]byte(canonical)),
	}, "\n")

	key := s.DeriveKey(creds.SecretKey, t, scope)
	signature := fmt.Sprintf("%x", s.hasher.HMAC(key, []byte(toSign)))

	headers.Set(HeaderAuthorization, fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, creds.AccessKey, credentialScope, signedHeaders, signature,
	))

	return SignedRequest{
		Method:    req.Method,
		URL:       sendURL(req),
		Headers:   headers,
		Body:      req.Body,
		Timestamp: t,
		Signature: signature,
	}, nil
}

// DeriveKey chains HMACs seeded from the secret over date, region, service,
// and request type, in that order.
func (s *Signer) DeriveKey(secret string, t time.Time, scope Scope) []byte {
	key := []byte("AWS4" + secret)
	for _, part := range []string{t.UTC().Format(DateFormat), scope.Region, scope.Service, RequestType} {
		key = s.hasher.HMAC(key, []byte(part))
	}
	return key
}

func (s *Signer) canonicalRequest(req Request, canonicalHeaders, signedHeaders string) string {
	return strings.Join([]string{
		strings.ToUpper(req.Method),
		canonicalURI(req.Path),
		canonicalQuery(req.Query),
		canonicalHeaders,
		signedHeaders,
		s.hasher.Hash(req.Body),
	}, "\n")
}

func validate(req Request, creds product.Credentials, scope Scope, t time.Time) error {
	switch {
	case !creds.CanSign():
		return fmt.Errorf("%w: access and secret key required", product.ErrSigningFault)
	case req.Method == "":
		return fmt.Errorf("%w: method required", product.ErrSigningFault)
	case req.Host == "":
		return fmt.Errorf("%w: host required", product.ErrSigningFault)
	case scope.Region == "" || scope.Service == "":
		return fmt.Errorf("%w: region and service required", product.ErrSigningFault)
	case t.IsZero():
		return fmt.Errorf("%w: timestamp required", product.ErrSigningFault)
	}
	return nil
}

// canonicalizeHeaders returns the canonical header block (each line newline
// terminated) and the semicolon-separated signed header list.
func canonicalizeHeaders(headers http.Header, host string) (string, string) {
	values := make(map[string][]string, len(headers)+1)
	for name, vals := range headers {
		lower := strings.ToLower(name)
		for _, v := range vals {
			values[lower] = append(values[lower], strings.Join(strings.Fields(v), " "))
		}
	}
	values["host"] = []string{strings.ToLower(host)}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(values[name], ","))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = escape(seg)
	}
	return strings.Join(segments, "/")
}

func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(q))
	for key, vals := range q {
		sorted := append([]string(nil), vals...)
		sort.Strings(sorted)
		for _, v := range sorted {
			pairs = append(pairs, escape(key)+"="+escape(v))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// escape percent-encodes everything except RFC 3986 unreserved characters.
func escape(s string) string {
	return strings.NewReplacer("+", "%20", "%7E", "~").Replace(url.QueryEscape(s))
}

func sendURL(req Request) string {
	base := req.BaseURL
	if base == "" {
		base = "https://" + req.Host
	}
	u := strings.TrimRight(base, "/") + canonicalURI(req.Path)
	if q := canonicalQuery(req.Query); q != "" {
		u += "?" + q
	}
	return u
}

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src)+2)
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}
