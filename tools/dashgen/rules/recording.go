package rules

// RecordingRules returns a PrometheusRule CR containing pre-computed rate
// expressions used by dashboards and alert rules.
func RecordingRules() PrometheusRule {
	return PrometheusRule{
		APIVersion: "monitoring.coreos.com/v1",
		Kind:       "PrometheusRule",
		Metadata: PrometheusRuleMetadata{
			Name: "pw-recording-rules",
			Labels: map[string]string{
				"prometheus": "system-rules-prometheus",
			},
		},
		Spec: PrometheusRuleSpec{
			Groups: []RuleGroup{
				{
					Name: "pw-recording",
					Rules: []Rule{
						{
							Record: "pw:http_requests:rate5m",
							Expr:   `sum(rate(pw_http_requests_total[5m]))`,
						},
						{
							Record: "pw:http_errors:rate5m",
							Expr:   `sum(rate(pw_http_requests_total{status=~"5.."}[5m]))`,
						},
						{
							Record: "pw:scrapes:rate5m",
							Expr:   `sum(rate(pw_scrapes_total[5m]))`,
						},
						{
							Record: "pw:scrape_failures:rate5m",
							Expr:   `sum(rate(pw_scrapes_total{result!="ok"}[5m]))`,
						},
						{
							Record: "pw:points_ingested:rate5m",
							Expr:   `rate(pw_points_ingested_total[5m])`,
						},
						{
							Record: "pw:tasks_completed:rate5m",
							Expr:   `sum(rate(pw_tasks_completed_total[5m]))`,
						},
						{
							Record: "pw:alerts_fired:rate5m",
							Expr:   `sum(rate(pw_alerts_fired_total[5m]))`,
						},
					},
				},
			},
		},
	}
}
