package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "19.99", want: "19.99"},
		{raw: "$1,299.95", want: "1299.95"},
		{raw: "€ 1.299,95", want: "1299.95"},
		{raw: "12,99", want: "12.99"},
		{raw: "1,299", want: "1299"},
		{raw: "1.299", want: "1299"},
		{raw: "0,999", want: "0.999"},
		{raw: "1.234.567", want: "1234567"},
		{raw: "49", want: "49"},
		{raw: "£249.00", want: "249"},
		{raw: "USD 99.90", want: "99.9"},
		{raw: "", wantErr: true},
		{raw: "call for price", wantErr: true},
		{raw: "-5.00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parsePrice(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCurrencyFromSymbol(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"$19.99", "USD"},
		{"€ 12,50", "EUR"},
		{"£5", "GBP"},
		{"¥1200", "JPY"},
		{"C$30.00", "CAD"},
		{"A$45", "AUD"},
		{"1299.95", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, currencyFromSymbol(tt.raw))
		})
	}
}

func TestExtract_GraphContainer(t *testing.T) {
	doc := `<html><head><script type="application/ld+json">
	{
	  "@context": "https://schema.org",
	  "@graph": [
	    {"@type": "BreadcrumbList"},
	    {"@type": ["Product", "Thing"], "name": "Standing Desk",
	     "offers": [{"@type": "Offer", "price": "549.00", "priceCurrency": "USD"}]}
	  ]
	}
	</script></head><body></body></html>`

	ext, err := extract([]byte(doc), defaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "549", ext.price.String())
	assert.Equal(t, "USD", ext.currency)
	assert.Equal(t, "Standing Desk", ext.title)
	assert.True(t, ext.available)
}

func TestExtract_AggregateOfferLowPrice(t *testing.T) {
	doc := `<html><head><script type="application/ld+json">
	{"@type": "Product", "name": "SSD",
	 "offers": {"@type": "AggregateOffer", "lowPrice": 89.99, "highPrice": 120, "priceCurrency": "USD"}}
	</script></head><body></body></html>`

	ext, err := extract([]byte(doc), defaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "89.99", ext.price.String())
}

func TestExtract_SkipsMalformedJSONLD(t *testing.T) {
	doc := `<html><head>
	<script type="application/ld+json">{not valid json</script>
	<script type="application/ld+json">{"@type":"Product","name":"Lamp","offers":{"price":"25.00"}}</script>
	</head><body></body></html>`

	ext, err := extract([]byte(doc), defaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "25", ext.price.String())
	assert.Equal(t, "Lamp", ext.title)
}

func TestExtract_JSONLDWinsOverMeta(t *testing.T) {
	doc := `<html><head>
	<meta property="og:price:amount" content="999.00">
	<script type="application/ld+json">{"@type":"Product","offers":{"price":"100.00"}}</script>
	</head><body></body></html>`

	ext, err := extract([]byte(doc), defaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "100", ext.price.String())
}

func TestExtract_NoPrice(t *testing.T) {
	_, err := extract([]byte(`<html><body><p>nothing here</p></body></html>`), defaultSelectors())
	require.ErrorIs(t, err, errNoPrice)
}

func TestLooksBlocked(t *testing.T) {
	assert.True(t, looksBlocked([]byte("<html><h1>Robot Check</h1></html>")))
	assert.True(t, looksBlocked([]byte("please VERIFY you are a HUMAN")))
	assert.False(t, looksBlocked([]byte("<html><script src='recaptcha.js'></script><p>Buy now</p></html>")))
}
