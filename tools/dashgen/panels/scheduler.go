package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// JobDuration returns a timeseries panel showing the p95 run duration of
// each scheduler job.
func JobDuration() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Job Duration (p95)").
		Description("95th percentile scheduler job run duration").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`histogram_quantile(0.95, sum(rate(pw_scheduler_job_duration_seconds_bucket{job="pricewatch"}[15m])) by (le, job_name))`,
			"{{job_name}}",
			"A",
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

// JobFreshness returns a timeseries panel showing the time since each
// scheduler job last succeeded. enqueue_due should stay near a minute;
// retention_sweep climbs toward a day between runs.
func JobFreshness() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Job Freshness").
		Description("Seconds since each scheduler job last succeeded").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`time() - pw_scheduler_job_last_success_timestamp_seconds{job="pricewatch"}`,
			"{{job_name}}",
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

// LockMisses returns a timeseries panel showing job runs skipped because
// another instance held the advisory lock.
func LockMisses() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Lock Misses").
		Description("Job runs skipped per hour because another instance held the lock").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(ThirdWidth).
		WithTarget(PromQuery(
			`sum(increase(pw_scheduler_lock_misses_total{job="pricewatch"}[1h])) by (job_name)`,
			"{{job_name}}",
			"A",
		)).
		FillOpacity(10).
		LineWidth(2).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}
