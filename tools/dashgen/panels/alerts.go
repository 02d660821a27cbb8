package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/bargauge"
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/stat"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// AlertsFiredRate returns a timeseries panel showing alert events created
// per second by kind.
func AlertsFiredRate() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Alerts Fired").
		Description("Alert events created per second by kind").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`sum(rate(pw_alerts_fired_total{job="pricewatch"}[5m])) by (kind)`,
			"{{kind}}", "A",
		)).
		FillOpacity(10).
		LineWidth(2).
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// DeliveryOutcomes returns a timeseries panel showing notification sink
// deliveries per second, split by immediate and digest mode.
func DeliveryOutcomes() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Deliveries").
		Description("Successful sink deliveries per second by mode").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`sum(rate(pw_notifications_sent_total{job="pricewatch"}[5m])) by (mode)`,
			"{{mode}}", "A",
		)).
		FillOpacity(10).
		LineWidth(2).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// DeliveryFailures returns a stat panel showing failed notification
// deliveries in the past 24 hours.
func DeliveryFailures() *stat.PanelBuilder {
	return stat.NewPanelBuilder().
		Title("Delivery Failures (24h)").
		Description("Failed notification deliveries in the last 24 hours").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`sum(increase(pw_notification_failures_total{job="pricewatch"}[24h]))`,
			"", "A",
		)).
		Thresholds(ThresholdsGreenYellowRed(1, 5)).
		ColorScheme(ColorSchemeThresholds()).
		ColorMode(common.BigValueColorModeBackground).
		GraphMode(common.BigValueGraphModeArea)
}

// DigestBatchSize returns a bar gauge panel showing the distribution of
// events per digest delivery.
func DigestBatchSize() *bargauge.PanelBuilder {
	return bargauge.NewPanelBuilder().
		Title("Digest Batch Size").
		Description("Distribution of events per digest delivery").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(FullWidth).
		WithTarget(PromQuery(
			`sum(increase(pw_digest_batch_size_bucket{job="pricewatch"}[6h])) by (le)`,
			"{{le}}", "A",
		)).
		Orientation(common.VizOrientationHorizontal).
		Min(0).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic())
}
