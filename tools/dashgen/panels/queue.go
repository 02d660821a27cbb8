package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/stat"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// QueueDepth returns a timeseries panel showing pending tasks per
// priority class.
func QueueDepth() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Queue Depth").
		Description("Pending tasks by priority class").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(`pw_queue_depth{job="pricewatch"}`, "{{priority}}", "A")).
		FillOpacity(10).
		LineWidth(2).
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// OldestPendingAge returns a timeseries panel showing the age of the
// oldest pending task per priority class.
func OldestPendingAge() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Oldest Pending Age").
		Description("Age of the oldest pending task by priority class").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(`pw_queue_oldest_pending_age_seconds{job="pricewatch"}`, "{{priority}}", "A")).
		Unit("s").
		FillOpacity(10).
		LineWidth(2).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenYellowRed(300, 900)).
		ColorScheme(ColorSchemeThresholds()).
		DrawStyle(common.GraphDrawStyleLine)
}

// TaskOutcomes returns a timeseries panel showing completed tasks per
// second by outcome.
func TaskOutcomes() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Task Outcomes").
		Description("Completed tasks per second by outcome").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`sum(rate(pw_tasks_completed_total{job="pricewatch"}[5m])) by (outcome)`,
			"{{outcome}}", "A",
		)).
		FillOpacity(10).
		LineWidth(2).
		Legend(TableLegend("mean", "max")).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// TaskDuration returns a timeseries panel showing the p95 task execution
// time per priority class.
func TaskDuration() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Task Duration (p95)").
		Description("95th percentile task execution time by priority class").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(
			`histogram_quantile(0.95, sum(rate(pw_task_duration_seconds_bucket{job="pricewatch"}[5m])) by (le, priority))`,
			"{{priority}}",
			"A",
		)).
		Unit("s").
		FillOpacity(10).
		LineWidth(2).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// LeaseRecoveries returns a stat panel showing tasks returned to pending
// after an expired lease in the past 24 hours.
func LeaseRecoveries() *stat.PanelBuilder {
	return stat.NewPanelBuilder().
		Title("Lease Recoveries (24h)").
		Description("Tasks recovered from crashed or stalled workers in the last 24 hours").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(`increase(pw_tasks_recovered_total{job="pricewatch"}[24h])`, "", "A")).
		Thresholds(ThresholdsGreenYellowRed(1, 10)).
		ColorScheme(ColorSchemeThresholds()).
		ColorMode(common.BigValueColorModeBackground).
		GraphMode(common.BigValueGraphModeArea)
}
