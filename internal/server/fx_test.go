package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giftlist/linkresolver/internal/config"
	"github.com/giftlist/linkresolver/internal/product"
	"github.com/giftlist/linkresolver/internal/resolver"
)

func offlineConfig() config.Config {
	return config.Config{
		Server:      config.ServerConfig{Port: 0, RequestTimeoutSeconds: 5},
		Marketplace: config.MarketplaceConfig{AttemptTimeoutSeconds: 1},
		Scrape:      config.ScrapeConfig{Enabled: false},
	}
}

func TestBuildWithoutCredentialsOrScrape(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(offlineConfig(), zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, []string{resolver.StrategyAPI, resolver.StrategyStub}, app.resolver.Strategies())
	require.Nil(t, app.headless)

	res, err := app.Resolve(context.Background(), "amazon.com.br/dp/B09B8V1LZ3")
	require.NoError(t, err)
	require.Equal(t, resolver.StrategyStub, res.Strategy)
	require.Equal(t, product.Identifier("B09B8V1LZ3"), res.Identifier)
	require.Equal(t, product.FallbackTitle, res.Record.Title)
	require.Equal(t, "https://amazon.com.br/dp/B09B8V1LZ3", res.Record.AffiliateURL)
}

func TestBuildWithScrapeEnabled(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig()
	cfg.Scrape = config.ScrapeConfig{Enabled: true, TimeoutSeconds: 1}
	app, err := BuildWithLogger(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{resolver.StrategyAPI, resolver.StrategyScrape, resolver.StrategyStub}, app.resolver.Strategies())
}

func TestResolveRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(offlineConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = app.Resolve(context.Background(), "https://example.com/dp/B09B8V1LZ3")
	require.ErrorIs(t, err, product.ErrInvalidURL)
}

func TestHandlerServesProcessLink(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(offlineConfig(), zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/process-amazon-link",
		bytes.NewBufferString(`{"url":"https://www.amazon.com/gp/product/B08N5WRWNW"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool           `json:"success"`
		Data    product.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, product.FallbackDescription, body.Data.Description)
	require.False(t, body.Data.Price.Valid)
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	app, err := BuildWithLogger(offlineConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
