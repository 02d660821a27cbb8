package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// PointsRate returns a timeseries panel showing price points stored per
// minute alongside duplicate appends that were dropped.
func PointsRate() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Price Points / min").
		Description("Price points stored and duplicate appends dropped, per minute").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(FullWidth).
		WithTarget(PromQuery(`pw:points_ingested:rate5m * 60`, "stored/min", "A")).
		WithTarget(PromQuery(
			`rate(pw_points_duplicate_total{job="pricewatch"}[5m]) * 60`,
			"duplicates/min", "B",
		)).
		FillOpacity(10).
		LineWidth(2).
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}
