package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giftlist/linkresolver/internal/product"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) Resolve(ctx context.Context, id product.Identifier, creds product.Credentials) (product.PartialRecord, error) {
	args := m.Called(ctx, id, creds)
	return args.Get(0).(product.PartialRecord), args.Error(1)
}

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, pageURL string) (product.PartialRecord, error) {
	args := m.Called(ctx, pageURL)
	return args.Get(0).(product.PartialRecord), args.Error(1)
}

const echoURL = "https://amazon.com/dp/B08N5WRWNW"

var fullCreds = product.Credentials{AccessKey: "AK", SecretKey: "SK", PartnerTag: "gift-20"}

func stubRecord(sourceURL, tag string) product.Record {
	return product.Normalize(product.StubRecord(), sourceURL, tag)
}

func TestResolveAPISuccess(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	api.On("Resolve", mock.Anything, product.Identifier("B08N5WRWNW"), fullCreds).Return(product.PartialRecord{
		Title:    "Echo Dot",
		Price:    product.PriceOf(349.9),
		ImageURL: "https://m.media-amazon.com/echo.jpg",
	}, nil).Once()
	scraper := &mockScraper{}

	res := New(api, scraper, nil).ResolveDetailed(context.Background(), product.Query{SourceURL: echoURL}, fullCreds)
	require.Equal(t, StrategyAPI, res.Strategy)
	require.Equal(t, product.Identifier("B08N5WRWNW"), res.Identifier)

	want := product.Record{
		Title:        "Echo Dot",
		Price:        product.PriceOf(349.9),
		ImageURL:     "https://m.media-amazon.com/echo.jpg",
		Description:  product.FallbackDescription,
		AffiliateURL: "https://amazon.com/dp/B08N5WRWNW?tag=gift-20",
	}
	if diff := cmp.Diff(want, res.Record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	api.AssertExpectations(t)
	scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestResolveWithoutCredentialsScrapes(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	scraper := &mockScraper{}
	scraper.On("Scrape", mock.Anything, echoURL).Return(product.PartialRecord{Title: "Echo Dot"}, nil).Once()

	res := New(api, scraper, nil).ResolveDetailed(context.Background(), product.Query{SourceURL: echoURL}, product.Credentials{})
	require.Equal(t, StrategyScrape, res.Strategy)
	require.Equal(t, "Echo Dot", res.Record.Title)
	require.False(t, res.Record.Price.Valid)
	require.Equal(t, echoURL, res.Record.AffiliateURL)
	api.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveNoIdentifierSkipsAPI(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	scraper := &mockScraper{}
	scraper.On("Scrape", mock.Anything, "https://amzn.to/3xyz").Return(product.PartialRecord{Title: "Kindle"}, nil).Once()

	res := New(api, scraper, nil).ResolveDetailed(context.Background(), product.Query{SourceURL: "https://amzn.to/3xyz"}, fullCreds)
	require.Equal(t, StrategyScrape, res.Strategy)
	require.Empty(t, res.Identifier)
	api.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveAllEndpointsFailThenStub(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	api.On("Resolve", mock.Anything, mock.Anything, mock.Anything).
		Return(product.PartialRecord{}, fmt.Errorf("%w: 3 attempts", product.ErrAllEndpointsFailed)).Once()
	scraper := &mockScraper{}
	scraper.On("Scrape", mock.Anything, mock.Anything).
		Return(product.PartialRecord{}, fmt.Errorf("%w: status 503", product.ErrScrapeFailure)).Once()

	res := New(api, scraper, nil).ResolveDetailed(context.Background(), product.Query{SourceURL: echoURL}, fullCreds)
	require.Equal(t, StrategyStub, res.Strategy)
	require.Equal(t, stubRecord(echoURL, "gift-20"), res.Record)
	require.Equal(t, product.FallbackTitle, res.Record.Title)
	require.Equal(t, product.FallbackImageURL, res.Record.ImageURL)
	require.Equal(t, product.FallbackDescription, res.Record.Description)
	require.False(t, res.Record.Price.Valid)
	api.AssertExpectations(t)
	scraper.AssertExpectations(t)
}

func TestResolveEmptyPartialAdvances(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	api.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return(product.PartialRecord{Title: "  "}, nil).Once()
	scraper := &mockScraper{}
	scraper.On("Scrape", mock.Anything, mock.Anything).Return(product.PartialRecord{Price: product.PriceOf(10)}, nil).Once()

	res := New(api, scraper, nil).ResolveDetailed(context.Background(), product.Query{SourceURL: echoURL}, fullCreds)
	require.Equal(t, StrategyScrape, res.Strategy)
	require.Equal(t, product.PriceOf(10), res.Record.Price)
	require.Equal(t, product.FallbackTitle, res.Record.Title)
}

func TestResolveRecoversPanickingStrategy(t *testing.T) {
	t.Parallel()

	boom := Strategy{
		Name:    "boom",
		Network: true,
		Run: func(context.Context, Resolution) (product.PartialRecord, error) {
			panic("nil map write")
		},
	}
	res := NewWithStrategies([]Strategy{boom}, nil).ResolveDetailed(context.Background(), product.Query{SourceURL: echoURL}, product.Credentials{})
	require.Equal(t, StrategyStub, res.Strategy)
	require.Equal(t, stubRecord(echoURL, ""), res.Record)
}

func TestResolveCanceledContextSkipsNetwork(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	scraper := &mockScraper{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := New(api, scraper, nil).Resolve(ctx, product.Query{SourceURL: echoURL}, fullCreds)
	require.Equal(t, stubRecord(echoURL, "gift-20"), rec)
	api.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestResolveStrategiesAreSeenInOrder(t *testing.T) {
	t.Parallel()

	var seen []string
	record := func(name string, err error) Strategy {
		return Strategy{Name: name, Run: func(_ context.Context, r Resolution) (product.PartialRecord, error) {
			require.Equal(t, product.Identifier("B08N5WRWNW"), r.Identifier)
			seen = append(seen, name)
			return product.PartialRecord{Title: name}, err
		}}
	}
	r := NewWithStrategies([]Strategy{
		record("first", errors.New("nope")),
		record("second", nil),
		record("third", nil),
	}, nil)

	require.Equal(t, []string{"first", "second", "third", StrategyStub}, r.Strategies())
	res := r.ResolveDetailed(context.Background(), product.Query{SourceURL: echoURL}, product.Credentials{})
	require.Equal(t, "second", res.Strategy)
	require.Equal(t, []string{"first", "second"}, seen)
}

func TestNewOmitsNilCollaborators(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{StrategyStub}, New(nil, nil, nil).Strategies())
	require.Equal(t, []string{StrategyAPI, StrategyScrape, StrategyStub}, New(&mockAPI{}, &mockScraper{}, nil).Strategies())
}
