package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// extraction is the raw result of walking one page.
type extraction struct {
	price     decimal.Decimal
	currency  string
	available bool
	title     string
}

var errNoPrice = errors.New("no price found in document")

// defaultSelectors are class-name fragments tried during fallback
// extraction, most specific first.
func defaultSelectors() []string {
	return []string{
		"product-price",
		"current-price",
		"price-now",
		"sale-price",
		"offer-price",
		"price",
	}
}

// extract walks the document in three passes: schema.org JSON-LD blocks,
// then price meta tags, then elements whose class matches a selector
// fragment. The first pass that yields a price wins; availability and
// title are filled from whichever source provides them.
func extract(body []byte, selectors []string) (*extraction, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	ext := &extraction{available: true}

	if fillFromJSONLD(doc, ext) {
		fillTitleFallback(doc, ext)
		applyStockMarkers(body, ext)
		return ext, nil
	}
	if fillFromMeta(doc, ext) {
		fillTitleFallback(doc, ext)
		applyStockMarkers(body, ext)
		return ext, nil
	}
	if fillFromSelectors(doc, selectors, ext) {
		fillTitleFallback(doc, ext)
		applyStockMarkers(body, ext)
		return ext, nil
	}

	return nil, errNoPrice
}

// --- JSON-LD pass ---

func fillFromJSONLD(doc *html.Node, ext *extraction) bool {
	found := false
	walk(doc, func(n *html.Node) {
		if found || n.Type != html.ElementNode || n.Data != "script" {
			return
		}
		if !strings.EqualFold(attr(n, "type"), "application/ld+json") {
			return
		}

		var data any
		if err := json.Unmarshal([]byte(textContent(n)), &data); err != nil {
			return
		}
		product, ok := findLDProduct(data)
		if !ok {
			return
		}
		if applyLDProduct(product, ext) {
			found = true
		}
	})
	return found
}

// findLDProduct digs through a decoded JSON-LD document for the first
// Product node, handling top-level arrays and @graph containers.
func findLDProduct(data any) (map[string]any, bool) {
	switch v := data.(type) {
	case map[string]any:
		if ldTypeIs(v["@type"], "Product") {
			return v, true
		}
		if graph, ok := v["@graph"]; ok {
			return findLDProduct(graph)
		}
	case []any:
		for _, item := range v {
			if p, ok := findLDProduct(item); ok {
				return p, true
			}
		}
	}
	return nil, false
}

func ldTypeIs(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, want)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func applyLDProduct(product map[string]any, ext *extraction) bool {
	if name, ok := product["name"].(string); ok {
		ext.title = strings.TrimSpace(name)
	}

	offer, ok := firstOffer(product["offers"])
	if !ok {
		return false
	}

	price, ok := ldPrice(offer)
	if !ok {
		return false
	}
	ext.price = price

	if cur, ok := offer["priceCurrency"].(string); ok {
		ext.currency = strings.ToUpper(strings.TrimSpace(cur))
	}
	if avail, ok := offer["availability"].(string); ok {
		ext.available = strings.Contains(strings.ToLower(avail), "instock")
	}
	return true
}

func firstOffer(offers any) (map[string]any, bool) {
	switch v := offers.(type) {
	case map[string]any:
		return v, true
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// ldPrice reads offer.price or offer.lowPrice (AggregateOffer), which may
// be a JSON number or a string.
func ldPrice(offer map[string]any) (decimal.Decimal, bool) {
	for _, key := range []string{"price", "lowPrice"} {
		switch v := offer[key].(type) {
		case string:
			if p, err := parsePrice(v); err == nil {
				return p, true
			}
		case float64:
			return decimal.NewFromFloat(v), true
		}
	}
	return decimal.Decimal{}, false
}

// --- meta tag pass ---

var priceMetaKeys = map[string]bool{
	"og:price:amount":      true,
	"product:price:amount": true,
	"price":                true,
}

var currencyMetaKeys = map[string]bool{
	"og:price:currency":      true,
	"product:price:currency": true,
	"pricecurrency":          true,
}

func fillFromMeta(doc *html.Node, ext *extraction) bool {
	found := false
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		key := strings.ToLower(attr(n, "property"))
		if key == "" {
			key = strings.ToLower(attr(n, "itemprop"))
		}
		content := strings.TrimSpace(attr(n, "content"))
		if key == "" || content == "" {
			return
		}

		switch {
		case priceMetaKeys[key] && !found:
			if p, err := parsePrice(content); err == nil {
				ext.price = p
				found = true
			}
		case currencyMetaKeys[key]:
			ext.currency = strings.ToUpper(content)
		case key == "og:title" && ext.title == "":
			ext.title = content
		}
	})
	return found
}

// --- class selector pass ---

func fillFromSelectors(doc *html.Node, selectors []string, ext *extraction) bool {
	for _, sel := range selectors {
		if node := findByClassFragment(doc, sel); node != nil {
			text := strings.TrimSpace(textContent(node))
			if p, err := parsePrice(text); err == nil {
				ext.price = p
				if ext.currency == "" {
					ext.currency = currencyFromSymbol(text)
				}
				return true
			}
		}
	}
	return false
}

func findByClassFragment(doc *html.Node, fragment string) *html.Node {
	var match *html.Node
	walk(doc, func(n *html.Node) {
		if match != nil || n.Type != html.ElementNode {
			return
		}
		for _, class := range strings.Fields(attr(n, "class")) {
			if strings.Contains(strings.ToLower(class), fragment) {
				match = n
				return
			}
		}
	})
	return match
}

// --- shared fills ---

func fillTitleFallback(doc *html.Node, ext *extraction) {
	if ext.title != "" {
		return
	}
	walk(doc, func(n *html.Node) {
		if ext.title == "" && n.Type == html.ElementNode && n.Data == "title" {
			ext.title = strings.TrimSpace(textContent(n))
		}
	})
}

var outOfStockMarkers = []string{
	"out of stock",
	"sold out",
	"currently unavailable",
	"niet op voorraad",
	"agotado",
}

// applyStockMarkers downgrades availability when the page carries an
// explicit out-of-stock phrase. It never upgrades: a JSON-LD OutOfStock
// wins over missing markers.
func applyStockMarkers(body []byte, ext *extraction) {
	if !ext.available {
		return
	}
	lower := bytes.ToLower(body)
	for _, m := range outOfStockMarkers {
		if bytes.Contains(lower, []byte(m)) {
			ext.available = false
			return
		}
	}
}

// --- node helpers ---

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}
