// Package dashboards assembles Grafana dashboard definitions from panel builders.
package dashboards

import (
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"

	"pricewatch/tools/dashgen/panels"
)

// BuildOverview constructs the Pricewatch Overview dashboard with all
// metric rows.
func BuildOverview() *dashboard.DashboardBuilder {
	b := dashboard.NewDashboardBuilder("Pricewatch Overview").
		Uid("pw-overview").
		Tags([]string{"pw", "pricewatch"}).
		Refresh("30s").
		Time("now-6h", "now").
		Timezone("browser").
		Editable().
		Tooltip(dashboard.DashboardCursorSyncCrosshair).
		WithVariable(datasourceVar())

	// Row 1: Overview.
	b.WithRow(dashboard.NewRowBuilder("Overview").
		WithPanel(panels.HealthzStat()).
		WithPanel(panels.ReadyzStat()).
		WithPanel(panels.StaleProductsStat()).
		WithPanel(panels.UptimeStat()))

	// Row 2: HTTP.
	b.WithRow(dashboard.NewRowBuilder("HTTP").
		WithPanel(panels.RequestRate()).
		WithPanel(panels.LatencyPercentiles()).
		WithPanel(panels.ErrorRate()))

	// Row 3: Queue.
	b.WithRow(dashboard.NewRowBuilder("Queue").
		WithPanel(panels.QueueDepth()).
		WithPanel(panels.OldestPendingAge()).
		WithPanel(panels.TaskOutcomes()).
		WithPanel(panels.TaskDuration()).
		WithPanel(panels.LeaseRecoveries()))

	// Row 4: Scraping.
	b.WithRow(dashboard.NewRowBuilder("Scraping").
		WithPanel(panels.ScrapeOutcomes()).
		WithPanel(panels.ScrapeDuration()).
		WithPanel(panels.RateLimitWait()))

	// Row 5: Ingestion.
	b.WithRow(dashboard.NewRowBuilder("Ingestion").
		WithPanel(panels.PointsRate()))

	// Row 6: Alerts.
	b.WithRow(dashboard.NewRowBuilder("Alerts").
		WithPanel(panels.AlertsFiredRate()).
		WithPanel(panels.DeliveryOutcomes()).
		WithPanel(panels.DeliveryFailures()).
		WithPanel(panels.DigestBatchSize()))

	// Row 7: Scheduler.
	b.WithRow(dashboard.NewRowBuilder("Scheduler").
		WithPanel(panels.JobDuration()).
		WithPanel(panels.JobFreshness()).
		WithPanel(panels.LockMisses()))

	return b
}

func datasourceVar() *dashboard.DatasourceVariableBuilder {
	return dashboard.NewDatasourceVariableBuilder("datasource").
		Label("Datasource").
		Type("prometheus")
}
