// Package main implements a mock retailer shop for local development.
// It serves product pages from a JSON catalog in the three markup shapes
// the scraper understands (JSON-LD, price meta tags, plain price markup),
// so a pricewatch instance can be pointed at it without a real retailer.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/crc32"
	"html"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

type catalog struct {
	Products []product `json:"products"`
}

type product struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	Available bool   `json:"available"`
	Layout    string `json:"layout"` // jsonld, meta, plain
}

func main() {
	port := flag.Int("port", 8090, "port to listen on")
	catalogFile := flag.String("catalog", "tools/mockshop/testdata/catalog.json", "path to product catalog")
	drift := flag.Bool("drift", true, "drift prices over the day so alerts fire")
	throttle := flag.Int("throttle", 0, "answer every Nth request with 429 (0 = off)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cat, err := loadCatalog(*catalogFile)
	if err != nil {
		logger.Error("failed to load catalog", "path", *catalogFile, "error", err)
		os.Exit(1)
	}
	logger.Info("loaded catalog", "products", len(cat.Products))

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("starting mock shop", "addr", addr, "drift", *drift, "throttle", *throttle)

	srv := &http.Server{
		Addr:         addr,
		Handler:      newServer(logger, cat, *drift, *throttle),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func loadCatalog(path string) (*catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // catalog path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var cat catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &cat, nil
}

func newServer(logger *slog.Logger, cat *catalog, drift bool, throttleEvery int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", indexHandler(cat))
	mux.HandleFunc("GET /p/{id}", productHandler(logger, cat, drift, throttleEvery))
	return requestLogger(logger, mux)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func indexHandler(cat *catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, p := range cat.Products {
			//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
			fmt.Fprintf(w, "/p/%s\t%s\t(%s)\n", p.ID, p.Title, p.Layout)
		}
	}
}

func productHandler(logger *slog.Logger, cat *catalog, drift bool, throttleEvery int) http.HandlerFunc {
	byID := make(map[string]product, len(cat.Products))
	for _, p := range cat.Products {
		byID[p.ID] = p
	}

	var requests atomic.Int64

	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := byID[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		if n := requests.Add(1); throttleEvery > 0 && n%int64(throttleEvery) == 0 {
			w.Header().Set("Retry-After", "30")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			logger.Warn("throttled", "product", p.ID, "request", n)
			return
		}

		price := p.Price
		if drift {
			price = driftedPrice(p.Price, p.ID, time.Now())
		}

		var page []byte
		switch p.Layout {
		case "meta":
			page = renderMeta(p, price)
		case "plain":
			page = renderPlain(p, price)
		default:
			page = renderJSONLD(p, price)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
		w.Write(page)
		logger.Info("served product", "id", p.ID, "layout", p.Layout, "price", price, "available", p.Available)
	}
}

// driftedPrice moves the base price along a slow daily sine, phase-shifted
// per product so the catalog does not move in lockstep. Amplitude is 5%,
// enough to trip price_drop and target_reached rules during a demo.
func driftedPrice(base, id string, now time.Time) string {
	v, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return base
	}
	phase := float64(crc32.ChecksumIEEE([]byte(id))%360) / 360
	frac := float64(now.Unix()%86400) / 86400
	drifted := v * (1 + 0.05*math.Sin(2*math.Pi*(frac+phase)))
	return strconv.FormatFloat(math.Round(drifted*100)/100, 'f', 2, 64)
}

func renderJSONLD(p product, price string) []byte {
	availability := "https://schema.org/InStock"
	if !p.Available {
		availability = "https://schema.org/OutOfStock"
	}
	//nolint:errcheck // static shape, cannot fail
	ld, _ := json.Marshal(map[string]any{
		"@context": "https://schema.org",
		"@type":    "Product",
		"name":     p.Title,
		"offers": map[string]any{
			"@type":         "Offer",
			"price":         price,
			"priceCurrency": p.Currency,
			"availability":  availability,
		},
	})
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<title>%s</title>
<script type="application/ld+json">%s</script>
</head><body>
<h1>%s</h1>
<p>Our best price, updated daily.</p>
</body></html>
`, html.EscapeString(p.Title), ld, html.EscapeString(p.Title)))
}

func renderMeta(p product, price string) []byte {
	stock := ""
	if !p.Available {
		stock = "<p>Currently unavailable.</p>"
	}
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<title>%s</title>
<meta property="og:title" content="%s">
<meta property="product:price:amount" content="%s">
<meta property="product:price:currency" content="%s">
</head><body>
<h1>%s</h1>
%s
</body></html>
`, html.EscapeString(p.Title), html.EscapeString(p.Title), price, p.Currency,
		html.EscapeString(p.Title), stock))
}

func renderPlain(p product, price string) []byte {
	stock := ""
	if !p.Available {
		stock = `<div class="stock">Sold out</div>`
	}
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head>
<body>
<h1 class="product-title">%s</h1>
<span class="product-price">%s%s</span>
%s
</body></html>
`, html.EscapeString(p.Title), html.EscapeString(p.Title), symbolFor(p.Currency), price, stock))
}

func symbolFor(currency string) string {
	switch currency {
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	default:
		return "$"
	}
}
