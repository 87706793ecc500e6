// Package marketplace resolves product identifiers through the Product
// Advertising API, trying each regional endpoint in order until one returns
// an item.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/giftlist/linkresolver/internal/clock/system"
	"github.com/giftlist/linkresolver/internal/metrics"
	"github.com/giftlist/linkresolver/internal/product"
	"github.com/giftlist/linkresolver/internal/signing"
)

// Config controls dispatcher behavior.
type Config struct {
	Endpoints      []product.Endpoint
	Resources      []string
	PartnerType    string
	AttemptTimeout time.Duration
}

// Waiter delays a call to host until the quota allows it.
type Waiter interface {
	Wait(ctx context.Context, host string) error
}

// Attempt is the outcome of one endpoint call. Err is nil on success.
type Attempt struct {
	Endpoint   product.Endpoint
	StatusCode int
	Duration   time.Duration
	Err        error
}

// OK reports whether the attempt produced an item.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// AllEndpointsFailedError aggregates every failed attempt of one resolution.
type AllEndpointsFailedError struct {
	Attempts []Attempt
	// Cause is set when the caller's context ended before every endpoint was tried.
	Cause error
}

func (e *AllEndpointsFailedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts)+1)
	for _, a := range e.Attempts {
		reasons = append(reasons, a.Err.Error())
	}
	if e.Cause != nil {
		reasons = append(reasons, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", product.ErrAllEndpointsFailed, strings.Join(reasons, "; "))
}

// Unwrap exposes the sentinel, each attempt error, and the cause.
func (e *AllEndpointsFailedError) Unwrap() []error {
	errs := []error{product.ErrAllEndpointsFailed}
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Dispatcher issues signed GetItems calls against an ordered endpoint list.
type Dispatcher struct {
	cfg     Config
	signer  *signing.Signer
	clock   product.Clock
	limiter Waiter
	client  *resty.Client
	logger  *zap.Logger
}

// New builds a Dispatcher. A nil limiter disables quota waits; a nil clock uses the wall clock.
func New(cfg Config, signer *signing.Signer, clock product.Clock, limiter Waiter, logger *zap.Logger) *Dispatcher {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = DefaultResources
	}
	if cfg.PartnerType == "" {
		cfg.PartnerType = DefaultPartnerType
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if signer == nil {
		signer = signing.New(nil)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.AttemptTimeout).
		SetHeader("Accept", "application/json")
	return &Dispatcher{
		cfg:     cfg,
		signer:  signer,
		clock:   clock,
		limiter: limiter,
		client:  client,
		logger:  logger,
	}
}

// Endpoints returns the configured endpoints in dispatch order.
func (d *Dispatcher) Endpoints() []product.Endpoint {
	return append([]product.Endpoint(nil), d.cfg.Endpoints...)
}

// Resolve looks id up on each endpoint in order and returns the first item
// found. Incomplete credentials fail with product.ErrCredentialsMissing before
// any network call; exhausting the list fails with *AllEndpointsFailedError.
func (d *Dispatcher) Resolve(ctx context.Context, id product.Identifier, creds product.Credentials) (product.PartialRecord, error) {
	if !creds.Complete() {
		return product.PartialRecord{}, product.ErrCredentialsMissing
	}
	if id == "" {
		return product.PartialRecord{}, product.ErrNoIdentifier
	}

	failed := &AllEndpointsFailedError{}
	for _, ep := range d.cfg.Endpoints {
		if err := ctx.Err(); err != nil {
			failed.Cause = err
			break
		}
		rec, attempt := d.attempt(ctx, ep, id, creds)
		d.observe(attempt)
		if attempt.OK() {
			return rec, nil
		}
		failed.Attempts = append(failed.Attempts, attempt)
	}
	return product.PartialRecord{}, failed
}

func (d *Dispatcher) attempt(
	ctx context.Context,
	ep product.Endpoint,
	id product.Identifier,
	creds product.Credentials,
) (product.PartialRecord, Attempt) {
	start := time.Now()
	attempt := Attempt{Endpoint: ep}
	fail := func(cause error) (product.PartialRecord, Attempt) {
		attempt.Duration = time.Since(start)
		attempt.Err = fmt.Errorf("%w: %s: %w", product.ErrEndpointFailure, ep.MarketplaceID, cause)
		return product.PartialRecord{}, attempt
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(attemptCtx, ep.Host); err != nil {
			return fail(err)
		}
	}

	signed, err := d.buildRequest(ep, id, creds)
	if err != nil {
		return fail(err)
	}

	resp, err := d.client.R().
		SetContext(attemptCtx).
		SetHeaderMultiValues(signed.Headers).
		SetBody(signed.Body).
		Post(signed.URL)
	if err != nil {
		return fail(fmt.Errorf("send: %w", err))
	}
	attempt.StatusCode = resp.StatusCode()
	if !resp.IsSuccess() {
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}

	var payload getItemsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	items := payload.items()
	if len(items) == 0 {
		return fail(errors.New(payload.errorSummary()))
	}

	rec := items[0].toPartial()
	if rec.IsEmpty() {
		return fail(fmt.Errorf("item %s has no usable fields", id))
	}

	attempt.Duration = time.Since(start)
	return rec, attempt
}

// buildRequest captures the timestamp once and signs the GetItems body with it.
func (d *Dispatcher) buildRequest(ep product.Endpoint, id product.Identifier, creds product.Credentials) (signing.SignedRequest, error) {
	body, err := json.Marshal(getItemsRequest{
		ItemIDs:     []string{id.String()},
		Resources:   d.cfg.Resources,
		PartnerTag:  creds.PartnerTag,
		PartnerType: d.cfg.PartnerType,
		Marketplace: ep.MarketplaceID,
	})
	if err != nil {
		return signing.SignedRequest{}, fmt.Errorf("encode request: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Encoding", ContentEncoding)
	headers.Set("Content-Type", ContentType)
	headers.Set("X-Amz-Target", GetItemsTarget)

	signed, err := d.signer.Sign(signing.Request{
		Method:  http.MethodPost,
		Host:    ep.Host,
		Path:    GetItemsPath,
		Headers: headers,
		Body:    body,
		BaseURL: ep.BaseURL,
	}, creds, signing.Scope{Region: ep.Region, Service: ServiceName}, d.clock.Now())
	if err != nil {
		return signing.SignedRequest{}, fmt.Errorf("sign request: %w", err)
	}
	return signed, nil
}

func (d *Dispatcher) observe(a Attempt) {
	outcome := metrics.OutcomeSuccess
	if !a.OK() {
		outcome = metrics.OutcomeFailure
		if isTimeout(a.Err) {
			outcome = metrics.OutcomeTimeout
		}
		d.logger.Warn("marketplace attempt failed",
			zap.String("marketplace", a.Endpoint.MarketplaceID),
			zap.Int("status", a.StatusCode),
			zap.Duration("duration", a.Duration),
			zap.Error(a.Err),
		)
	} else {
		d.logger.Debug("marketplace attempt succeeded",
			zap.String("marketplace", a.Endpoint.MarketplaceID),
			zap.Duration("duration", a.Duration),
		)
	}
	metrics.ObserveMarketplaceAttempt(a.Endpoint.MarketplaceID, outcome, a.Duration)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
