package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/giftlist/linkresolver/internal/scrape"
)

func page(status int, body string) scrape.FetchResponse {
	return scrape.FetchResponse{StatusCode: status, Body: []byte(body)}
}

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(100).ShouldPromote(page(http.StatusOK, "")))
}

func TestHeuristic_ShouldPromote_CaptchaPage(t *testing.T) {
	t.Parallel()

	body := `<html><head><title>Amazon.com</title></head><body>
<form method="get" action="/errors/validateCaptcha"><input name="amzn"></form>
</body></html>`
	require.True(t, NewHeuristic(100).ShouldPromote(page(http.StatusOK, body)))
}

func TestHeuristic_ShouldPromote_BlockedStatuses(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(page(http.StatusServiceUnavailable, "busy")))
	require.True(t, h.ShouldPromote(page(http.StatusTooManyRequests, "")))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := page(http.StatusOK, `<html><script>var a=1;</script><div id="dp"></div></html>`)
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_MissingProductLayout(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10)
	body := "<html><body><p>" + strings.Repeat("Ofertas do dia ", 20) + "</p></body></html>"
	require.True(t, h.ShouldPromote(page(http.StatusOK, body)))
}

func TestHeuristic_ShouldPromote_ProductPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10)
	body := `<html><body><div id="dp"><span id="productTitle">Echo Dot</span></div></body></html>`
	require.False(t, h.ShouldPromote(page(http.StatusOK, body)))
}

func TestHeuristic_ShouldPromote_DisabledForNotFound(t *testing.T) {
	t.Parallel()

	require.False(t, NewHeuristic(100).ShouldPromote(page(http.StatusNotFound, "not found")))
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
}
