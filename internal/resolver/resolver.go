// Package resolver turns a product link into a normalized product record by
// running an ordered table of acquisition strategies, first success wins.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/giftlist/linkresolver/internal/metrics"
	"github.com/giftlist/linkresolver/internal/product"
)

// Strategy names, also used as metric labels.
const (
	StrategyAPI    = "amazon_api"
	StrategyScrape = "page_scrape"
	StrategyStub   = "stub"
)

// errEmptyResult marks a strategy that returned without error but with no fields.
var errEmptyResult = errors.New("strategy returned no product fields")

// APIClient looks an identifier up in the product catalog API.
type APIClient interface {
	Resolve(ctx context.Context, id product.Identifier, creds product.Credentials) (product.PartialRecord, error)
}

// PageScraper extracts product fields from the page at a URL.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (product.PartialRecord, error)
}

// Resolution is the per-call state every strategy reads. It is built once
// and never modified.
type Resolution struct {
	SourceURL   string
	Identifier  product.Identifier
	Credentials product.Credentials
}

// HasIdentifier reports whether an identifier was found in the source URL.
func (r Resolution) HasIdentifier() bool {
	return r.Identifier != ""
}

// Strategy is one way of acquiring product data.
type Strategy struct {
	Name string
	// Network strategies are skipped once the caller's context is done.
	Network bool
	Run     func(ctx context.Context, r Resolution) (product.PartialRecord, error)
}

// Result is a resolved record plus the strategy that produced it.
type Result struct {
	Record     product.Record
	Strategy   string
	Identifier product.Identifier
}

// Resolver runs the strategy table.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New builds the default table: catalog API, then page scrape, then stub.
// A nil api or scraper leaves that strategy out.
func New(api APIClient, scraper PageScraper, logger *zap.Logger) *Resolver {
	var strategies []Strategy
	if api != nil {
		strategies = append(strategies, APIStrategy(api))
	}
	if scraper != nil {
		strategies = append(strategies, ScrapeStrategy(scraper))
	}
	return NewWithStrategies(strategies, logger)
}

// NewWithStrategies builds a Resolver over a custom table. The stub strategy
// is always appended so resolution cannot fail.
func NewWithStrategies(strategies []Strategy, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	table := make([]Strategy, 0, len(strategies)+1)
	table = append(table, strategies...)
	table = append(table, StubStrategy())
	return &Resolver{strategies: table, logger: logger}
}

// Strategies returns the strategy names in execution order.
func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Resolve returns the normalized record for query. It never fails.
func (r *Resolver) Resolve(ctx context.Context, query product.Query, creds product.Credentials) product.Record {
	return r.ResolveDetailed(ctx, query, creds).Record
}

// ResolveDetailed is Resolve plus the winning strategy name.
func (r *Resolver) ResolveDetailed(ctx context.Context, query product.Query, creds product.Credentials) Result {
	id, _ := product.ExtractIdentifier(query.SourceURL)
	res := Resolution{
		SourceURL:   query.SourceURL,
		Identifier:  id,
		Credentials: creds,
	}
	logger := r.logger.With(
		zap.String("url", query.SourceURL),
		zap.String("identifier", id.String()),
	)

	partial, winner := product.StubRecord(), StrategyStub
	for _, s := range r.strategies {
		if s.Network && ctx.Err() != nil {
			metrics.ObserveStrategy(s.Name, metrics.OutcomeSkipped)
			logger.Debug("strategy skipped, caller gone", zap.String("strategy", s.Name))
			continue
		}
		got, err := runStrategy(ctx, s, res)
		if err == nil && got.IsEmpty() {
			err = errEmptyResult
		}
		if err != nil {
			outcome := metrics.OutcomeFailure
			switch {
			case errors.Is(err, product.ErrCredentialsMissing), errors.Is(err, product.ErrNoIdentifier):
				outcome = metrics.OutcomeSkipped
			case errors.Is(err, errEmptyResult):
				outcome = metrics.OutcomeEmpty
			}
			metrics.ObserveStrategy(s.Name, outcome)
			logger.Info("strategy did not produce a record",
				zap.String("strategy", s.Name),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveStrategy(s.Name, metrics.OutcomeSuccess)
		partial, winner = got, s.Name
		break
	}

	metrics.ObserveResolution(winner)
	logger.Info("product resolved", zap.String("strategy", winner))
	return Result{
		Record:     product.Normalize(partial, query.SourceURL, creds.PartnerTag),
		Strategy:   winner,
		Identifier: id,
	}
}

// runStrategy converts a panic inside a strategy into an error.
func runStrategy(ctx context.Context, s Strategy, res Resolution) (partial product.PartialRecord, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			partial = product.PartialRecord{}
			err = fmt.Errorf("strategy %s panicked: %v", s.Name, rec)
		}
	}()
	return s.Run(ctx, res)
}

// APIStrategy queries the catalog API. It needs an identifier and complete credentials.
func APIStrategy(api APIClient) Strategy {
	return Strategy{
		Name:    StrategyAPI,
		Network: true,
		Run: func(ctx context.Context, r Resolution) (product.PartialRecord, error) {
			if !r.HasIdentifier() {
				return product.PartialRecord{}, product.ErrNoIdentifier
			}
			if !r.Credentials.Complete() {
				return product.PartialRecord{}, product.ErrCredentialsMissing
			}
			return api.Resolve(ctx, r.Identifier, r.Credentials)
		},
	}
}

// ScrapeStrategy reads the product page itself.
func ScrapeStrategy(scraper PageScraper) Strategy {
	return Strategy{
		Name:    StrategyScrape,
		Network: true,
		Run: func(ctx context.Context, r Resolution) (product.PartialRecord, error) {
			return scraper.Scrape(ctx, r.SourceURL)
		},
	}
}

// StubStrategy always succeeds with the placeholder record.
func StubStrategy() Strategy {
	return Strategy{
		Name: StrategyStub,
		Run: func(context.Context, Resolution) (product.PartialRecord, error) {
			return product.StubRecord(), nil
		},
	}
}
