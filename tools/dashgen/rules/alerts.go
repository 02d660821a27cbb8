package rules

// AlertRules returns a PrometheusRule CR containing alert rules for
// pricewatch operational monitoring.
func AlertRules() PrometheusRule {
	return PrometheusRule{
		APIVersion: "monitoring.coreos.com/v1",
		Kind:       "PrometheusRule",
		Metadata: PrometheusRuleMetadata{
			Name: "pw-alerts",
			Labels: map[string]string{
				"prometheus": "system-rules-prometheus",
			},
		},
		Spec: PrometheusRuleSpec{
			Groups: []RuleGroup{
				{
					Name: "pw-alerts",
					Rules: []Rule{
						{
							Alert: "PricewatchDown",
							Expr:  `absent(up{job="pricewatch"})`,
							For:   "2m",
							Labels: map[string]string{
								"severity": "critical",
							},
							Annotations: map[string]string{
								"summary":     "Pricewatch is down",
								"description": "The pricewatch job has been absent for more than 2 minutes.",
							},
						},
						{
							Alert: "PricewatchReadinessDown",
							Expr:  `pw_readyz_up == 0`,
							For:   "2m",
							Labels: map[string]string{
								"severity": "critical",
							},
							Annotations: map[string]string{
								"summary":     "Pricewatch readiness check is failing",
								"description": "The readiness probe has been reporting not-ready for more than 2 minutes.",
							},
						},
						{
							Alert: "PricewatchHighErrorRate",
							Expr:  `pw:http_errors:rate5m / pw:http_requests:rate5m > 0.05`,
							For:   "5m",
							Labels: map[string]string{
								"severity": "warning",
							},
							Annotations: map[string]string{
								"summary":     "High HTTP error rate on pricewatch",
								"description": "More than 5% of HTTP requests are returning 5xx errors over the last 5 minutes.",
							},
						},
						{
							Alert: "PricewatchScrapeFailures",
							Expr:  `pw:scrape_failures:rate5m / pw:scrapes:rate5m > 0.25`,
							For:   "10m",
							Labels: map[string]string{
								"severity": "warning",
							},
							Annotations: map[string]string{
								"summary":     "Scrape failure ratio is elevated",
								"description": "More than a quarter of scrape attempts have been failing for the last 10 minutes. Check retailer blocks and selector drift.",
							},
						},
						{
							Alert: "PricewatchQueueBacklog",
							Expr:  `max(pw_queue_oldest_pending_age_seconds) > 900`,
							For:   "5m",
							Labels: map[string]string{
								"severity": "warning",
							},
							Annotations: map[string]string{
								"summary":     "Task queue backlog is growing",
								"description": "The oldest pending task has been waiting for more than 15 minutes. Workers may be underprovisioned.",
							},
						},
						{
							Alert: "PricewatchQueueStalled",
							Expr:  `sum(pw_queue_depth) > 0 and sum(rate(pw_tasks_dequeued_total[10m])) == 0`,
							For:   "10m",
							Labels: map[string]string{
								"severity": "critical",
							},
							Annotations: map[string]string{
								"summary":     "Task queue has stalled",
								"description": "Tasks are pending but no worker has dequeued anything for 10 minutes.",
							},
						},
						{
							Alert: "PricewatchSchedulerStalled",
							Expr:  `time() - pw_scheduler_job_last_success_timestamp_seconds{job_name="enqueue_due"} > 600`,
							For:   "5m",
							Labels: map[string]string{
								"severity": "critical",
							},
							Annotations: map[string]string{
								"summary":     "Scheduler has stopped enqueueing scrapes",
								"description": "The enqueue_due job has not succeeded in over 10 minutes. Due products are not being scraped.",
							},
						},
						{
							Alert: "PricewatchNotificationFailures",
							Expr:  `increase(pw_notification_failures_total[5m]) > 0`,
							For:   "1m",
							Labels: map[string]string{
								"severity": "warning",
							},
							Annotations: map[string]string{
								"summary":     "Notification delivery failures detected",
								"description": "One or more alert notifications have failed to reach the configured sink.",
							},
						},
					},
				},
			},
		},
	}
}
