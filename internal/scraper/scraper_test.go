package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pricewatch/pkg/types"
)

const jsonLDPage = `<!DOCTYPE html>
<html><head><title>Fallback Title</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Mechanical Keyboard",
  "offers": {
    "@type": "Offer",
    "price": "129.99",
    "priceCurrency": "EUR",
    "availability": "https://schema.org/InStock"
  }
}
</script>
</head><body><span class="price">$999.00</span></body></html>`

const metaPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="Noise Cancelling Headphones">
<meta property="og:price:amount" content="249.00">
<meta property="og:price:currency" content="gbp">
</head><body></body></html>`

const selectorPage = `<!DOCTYPE html>
<html><head><title>Ergonomic Chair | Shop</title></head>
<body><div class="pdp-product-price">€ 1.299,95</div></body></html>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testProduct(url string) *domain.Product {
	return &domain.Product{
		ID:        "prod-1",
		SourceURL: url,
		Title:     "Stored Title",
		Currency:  "USD",
	}
}

func TestEngine_Fetch_JSONLD(t *testing.T) {
	srv := serve(t, http.StatusOK, jsonLDPage)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "129.99", obs.Price.String())
	assert.Equal(t, "EUR", obs.Currency)
	assert.Equal(t, "Mechanical Keyboard", obs.Title)
	assert.True(t, obs.Available)
	assert.False(t, obs.ObservedAt.IsZero())
	assert.Equal(t, time.UTC, obs.ObservedAt.Location())
}

func TestEngine_Fetch_JSONLDOutOfStock(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
	{"@type":"Product","name":"Dock","offers":{"price":59.5,"priceCurrency":"USD","availability":"https://schema.org/OutOfStock"}}
	</script></head><body></body></html>`
	srv := serve(t, http.StatusOK, page)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "59.5", obs.Price.String())
	assert.False(t, obs.Available)
}

func TestEngine_Fetch_MetaTags(t *testing.T) {
	srv := serve(t, http.StatusOK, metaPage)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "249", obs.Price.String())
	assert.Equal(t, "GBP", obs.Currency)
	assert.Equal(t, "Noise Cancelling Headphones", obs.Title)
	assert.True(t, obs.Available)
}

func TestEngine_Fetch_SelectorFallback(t *testing.T) {
	srv := serve(t, http.StatusOK, selectorPage)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "1299.95", obs.Price.String())
	assert.Equal(t, "EUR", obs.Currency)
	assert.Equal(t, "Ergonomic Chair | Shop", obs.Title)
}

func TestEngine_Fetch_CustomSelector(t *testing.T) {
	page := `<html><body><span class="shop-amount">$42.00</span></body></html>`
	srv := serve(t, http.StatusOK, page)
	engine := NewEngine(
		WithHTTPClient(srv.Client()),
		WithPriceSelectors([]string{"shop-amount"}),
	)

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "42", obs.Price.String())
	assert.Equal(t, "USD", obs.Currency)
}

func TestEngine_Fetch_StoredFieldFallbacks(t *testing.T) {
	// Price via meta tag, no currency or title anywhere useful.
	page := `<html><head><meta itemprop="price" content="15.00"></head><body></body></html>`
	srv := serve(t, http.StatusOK, page)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "15", obs.Price.String())
	assert.Equal(t, "USD", obs.Currency, "falls back to the product's stored currency")
	assert.Equal(t, "Stored Title", obs.Title, "falls back to the product's stored title")
}

func TestEngine_Fetch_OutOfStockMarker(t *testing.T) {
	page := `<html><head><meta property="og:price:amount" content="89.99"></head>
	<body><p>This item is currently unavailable.</p></body></html>`
	srv := serve(t, http.StatusOK, page)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)
	assert.False(t, obs.Available)
}

func TestEngine_Fetch_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "404 not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, http.StatusNotFound, nf.StatusCode)
			},
		},
		{
			name:   "410 gone",
			status: http.StatusGone,
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
			},
		},
		{
			name:   "403 blocked",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var b *BlockedError
				require.ErrorAs(t, err, &b)
				assert.Equal(t, http.StatusForbidden, b.StatusCode)
			},
		},
		{
			name:   "429 blocked",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var b *BlockedError
				require.ErrorAs(t, err, &b)
			},
		},
		{
			name:   "503 network",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				var n *NetworkError
				require.ErrorAs(t, err, &n)
				assert.Equal(t, http.StatusServiceUnavailable, n.StatusCode)
			},
		},
		{
			name:   "204 parse",
			status: http.StatusNoContent,
			check: func(t *testing.T, err error) {
				var p *ParseError
				require.ErrorAs(t, err, &p)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, "")
			engine := NewEngine(WithHTTPClient(srv.Client()))

			obs, err := engine.Fetch(context.Background(), testProduct(srv.URL))
			require.Error(t, err)
			assert.Nil(t, obs)
			tt.check(t, err)
		})
	}
}

func TestEngine_Fetch_BlockedBody(t *testing.T) {
	page := `<html><body><h1>Robot Check</h1><p>Enter the characters you see below.</p></body></html>`
	srv := serve(t, http.StatusOK, page)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	_, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	var b *BlockedError
	require.ErrorAs(t, err, &b)
	assert.Equal(t, http.StatusOK, b.StatusCode)
}

func TestEngine_Fetch_NoPrice(t *testing.T) {
	srv := serve(t, http.StatusOK, `<html><body><h1>About us</h1></body></html>`)
	engine := NewEngine(WithHTTPClient(srv.Client()))

	_, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	var p *ParseError
	require.ErrorAs(t, err, &p)
	assert.Contains(t, p.Reason, "no price")
}

func TestEngine_Fetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	engine := NewEngine(WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err := engine.Fetch(context.Background(), testProduct(url))

	var n *NetworkError
	require.ErrorAs(t, err, &n)
	assert.Equal(t, "network", FailureKind(err))
}

func TestEngine_Fetch_SendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, jsonLDPage)
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(WithHTTPClient(srv.Client()), WithUserAgent("pricewatch-test/9.9"))
	_, err := engine.Fetch(context.Background(), testProduct(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "pricewatch-test/9.9", gotUA)
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", &NetworkError{URL: "u"}, "network"},
		{"parse", &ParseError{URL: "u", Reason: "r"}, "parse"},
		{"blocked", &BlockedError{URL: "u"}, "blocked"},
		{"not found", &NotFoundError{URL: "u"}, "not_found"},
		{"wrapped network", fmt.Errorf("scrape: %w", &NetworkError{URL: "u"}), "network"},
		{"plain", errors.New("boom"), "other"},
		{"nil", nil, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureKind(tt.err))
		})
	}
}
