package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// ScrapeOutcomes returns a timeseries panel showing scrape attempts per
// second by result.
func ScrapeOutcomes() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Scrape Outcomes").
		Description("Scrape attempts per second by result (ok, network, parse, blocked, not_found)").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`sum(rate(pw_scrapes_total{job="pricewatch"}[5m])) by (result)`,
			"{{result}}", "A",
		)).
		FillOpacity(10).
		LineWidth(2).
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// ScrapeDuration returns a timeseries panel showing p50 and p95 scrape
// latencies, fetch plus extraction.
func ScrapeDuration() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Scrape Duration").
		Description("Page fetch and extraction duration percentiles").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`histogram_quantile(0.50, sum(rate(pw_scrape_duration_seconds_bucket{job="pricewatch"}[5m])) by (le))`,
			"p50",
			"A",
		)).
		WithTarget(PromQuery(
			`histogram_quantile(0.95, sum(rate(pw_scrape_duration_seconds_bucket{job="pricewatch"}[5m])) by (le))`,
			"p95",
			"B",
		)).
		Unit("s").
		FillOpacity(10).
		LineWidth(2).
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// RateLimitWait returns a timeseries panel showing the p95 time scrape
// workers spend waiting on per-retailer token buckets.
func RateLimitWait() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Rate Limit Wait (p95)").
		Description("95th percentile wait on per-retailer token buckets").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`histogram_quantile(0.95, sum(rate(pw_ratelimit_wait_seconds_bucket{job="pricewatch"}[5m])) by (le))`,
			"p95",
			"A",
		)).
		Unit("s").
		FillOpacity(10).
		LineWidth(2).
		Thresholds(ThresholdsGreenYellowRed(5, 30)).
		ColorScheme(ColorSchemeThresholds()).
		DrawStyle(common.GraphDrawStyleLine)
}
