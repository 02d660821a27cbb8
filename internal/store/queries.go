package store

// SQL query constants organized by entity.
// All SQL lives here; PostgresStore methods reference these constants.

// Retailer queries.
const (
	queryUpsertRetailer = `
		INSERT INTO retailers (name, base_url, requests_per_minute, burst, active, created_at)
		VALUES (@name, @base_url, @requests_per_minute, @burst, @active, now())
		ON CONFLICT (name) DO UPDATE SET
			base_url            = EXCLUDED.base_url,
			requests_per_minute = EXCLUDED.requests_per_minute,
			burst               = EXCLUDED.burst,
			active              = EXCLUDED.active
		RETURNING id, created_at`

	queryGetRetailer = `
		SELECT id, name, base_url, requests_per_minute, burst, active, created_at
		FROM retailers
		WHERE id = $1`

	queryListRetailersAll = `
		SELECT id, name, base_url, requests_per_minute, burst, active, created_at
		FROM retailers
		ORDER BY name`

	queryListRetailersActive = `
		SELECT id, name, base_url, requests_per_minute, burst, active, created_at
		FROM retailers
		WHERE active = true
		ORDER BY name`
)

// Product queries.
const (
	queryCreateProduct = `
		INSERT INTO products (
			retailer_id, source_url, title, sku, currency,
			cadence_seconds, priority_score, enabled, created_at, updated_at
		) VALUES (
			@retailer_id, @source_url, @title, NULLIF(@sku, ''), @currency,
			@cadence_seconds, @priority_score, @enabled, now(), now()
		)
		RETURNING id, created_at, updated_at`

	queryGetProduct = `
		SELECT id, retailer_id, source_url, title, COALESCE(sku, ''),
			current_price, currency, highest_price, lowest_price, available, last_checked_at,
			cadence_seconds, priority_score, failure_streak, stale, enabled,
			created_at, updated_at
		FROM products
		WHERE id = $1`

	queryGetProductByURL = `
		SELECT id, retailer_id, source_url, title, COALESCE(sku, ''),
			current_price, currency, highest_price, lowest_price, available, last_checked_at,
			cadence_seconds, priority_score, failure_streak, stale, enabled,
			created_at, updated_at
		FROM products
		WHERE source_url = $1`

	queryUpdateProductTracking = `
		UPDATE products SET
			cadence_seconds = $2,
			enabled         = $3,
			updated_at      = now()
		WHERE id = $1`

	querySetProductEnabled = `
		UPDATE products SET
			enabled    = $2,
			updated_at = now()
		WHERE id = $1`

	queryDeleteProduct = `DELETE FROM products WHERE id = $1`

	queryListDueProducts = `
		SELECT id, retailer_id, source_url, title, COALESCE(sku, ''),
			current_price, currency, highest_price, lowest_price, available, last_checked_at,
			cadence_seconds, priority_score, failure_streak, stale, enabled,
			created_at, updated_at
		FROM products
		WHERE enabled = true
		  AND (last_checked_at IS NULL
		       OR last_checked_at + make_interval(secs => cadence_seconds) <= $1)
		ORDER BY priority_score ASC, last_checked_at ASC NULLS FIRST
		LIMIT $2`

	queryUpdatePriorityScore = `
		UPDATE products SET
			priority_score = $2,
			updated_at     = now()
		WHERE id = $1`

	queryRecordScrapeSuccess = `
		UPDATE products SET
			failure_streak  = 0,
			stale           = false,
			last_checked_at = $2,
			updated_at      = now()
		WHERE id = $1`

	queryRecordScrapeFailure = `
		UPDATE products SET
			failure_streak  = failure_streak + 1,
			stale           = stale OR (failure_streak + 1) >= $3,
			last_checked_at = $2,
			updated_at      = now()
		WHERE id = $1
		RETURNING failure_streak`

	queryListScoringInputs = `
		SELECT p.id,
			COALESCE(p.current_price::float8, 0),
			COALESCE(v.vol_pct, 0),
			COALESCE(r.rule_count, 0),
			COALESCE(EXTRACT(EPOCH FROM (now() - p.last_checked_at)) / 3600.0, 168.0)::float8
		FROM products p
		LEFT JOIN (
			SELECT product_id,
				(CASE WHEN MIN(low) > 0
				      THEN (MAX(high) - MIN(low)) / MIN(low) * 100.0
				      ELSE 0 END)::float8 AS vol_pct
			FROM daily_price_summaries
			WHERE day >= (now() - make_interval(secs => $1))::date
			GROUP BY product_id
		) v ON v.product_id = p.id
		LEFT JOIN (
			SELECT product_id, COUNT(*)::int AS rule_count
			FROM alert_rules
			WHERE enabled = true
			GROUP BY product_id
		) r ON r.product_id = p.id
		WHERE p.enabled = true`
)

// Price point queries. The append path runs in one transaction: insert
// point, upsert daily summary, refresh product extremes, then refresh the
// current-price fields only when no later point exists.
const (
	queryInsertPricePoint = `
		INSERT INTO price_points (product_id, price, currency, available, observed_at)
		VALUES (@product_id, @price, @currency, @available, @observed_at)
		ON CONFLICT (product_id, observed_at) DO NOTHING`

	queryUpsertDailySummary = `
		INSERT INTO daily_price_summaries (
			product_id, day, open, close, low, high, sum, sum_squares, count,
			first_observed_at, last_observed_at
		) VALUES (
			@product_id, (@observed_at AT TIME ZONE 'UTC')::date,
			@price, @price, @price, @price, @price, @price * @price, 1,
			@observed_at, @observed_at
		)
		ON CONFLICT (product_id, day) DO UPDATE SET
			low         = LEAST(daily_price_summaries.low, EXCLUDED.low),
			high        = GREATEST(daily_price_summaries.high, EXCLUDED.high),
			sum         = daily_price_summaries.sum + EXCLUDED.sum,
			sum_squares = daily_price_summaries.sum_squares + EXCLUDED.sum_squares,
			count       = daily_price_summaries.count + 1,
			open        = CASE WHEN EXCLUDED.first_observed_at < daily_price_summaries.first_observed_at
			                   THEN EXCLUDED.open ELSE daily_price_summaries.open END,
			close       = CASE WHEN EXCLUDED.last_observed_at > daily_price_summaries.last_observed_at
			                   THEN EXCLUDED.close ELSE daily_price_summaries.close END,
			first_observed_at = LEAST(daily_price_summaries.first_observed_at, EXCLUDED.first_observed_at),
			last_observed_at  = GREATEST(daily_price_summaries.last_observed_at, EXCLUDED.last_observed_at)`

	queryUpdateProductExtremes = `
		UPDATE products SET
			lowest_price  = LEAST(COALESCE(lowest_price, @price), @price),
			highest_price = GREATEST(COALESCE(highest_price, @price), @price),
			updated_at    = now()
		WHERE id = @product_id`

	queryUpdateProductCurrent = `
		UPDATE products SET
			current_price = @price,
			currency      = @currency,
			available     = @available,
			updated_at    = now()
		WHERE id = @product_id
		  AND NOT EXISTS (
			SELECT 1 FROM price_points
			WHERE product_id = @product_id AND observed_at > @observed_at
		  )`

	queryListPricePoints = `
		SELECT product_id, price, currency, available, observed_at
		FROM price_points
		WHERE product_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at DESC
		LIMIT $4`

	queryLatestPricePoint = `
		SELECT product_id, price, currency, available, observed_at
		FROM price_points
		WHERE product_id = $1
		ORDER BY observed_at DESC
		LIMIT 1`

	queryPriorPricePoint = `
		SELECT product_id, price, currency, available, observed_at
		FROM price_points
		WHERE product_id = $1 AND observed_at < $2
		ORDER BY observed_at DESC
		LIMIT 1`

	queryPriorLowestPrice = `
		SELECT MIN(price)
		FROM price_points
		WHERE product_id = $1 AND observed_at < $2`

	queryListDailySummaries = `
		SELECT product_id, day, open, close, low, high, sum, sum_squares, count,
			first_observed_at, last_observed_at
		FROM daily_price_summaries
		WHERE product_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day ASC`
)

// Alert rule queries.
const (
	queryCreateAlertRule = `
		INSERT INTO alert_rules (user_id, product_id, kind, threshold, enabled, created_at)
		VALUES (@user_id, @product_id, @kind, @threshold, @enabled, now())
		RETURNING id, created_at`

	queryGetAlertRule = `
		SELECT id, user_id, product_id, kind, threshold, enabled, created_at
		FROM alert_rules
		WHERE id = $1`

	querySetAlertRuleEnabled = `
		UPDATE alert_rules SET enabled = $2 WHERE id = $1`

	queryDeleteAlertRule = `DELETE FROM alert_rules WHERE id = $1`
)

// Alert event queries.
const (
	queryInsertAlertEvent = `
		INSERT INTO alert_events (
			rule_id, user_id, product_id, observed_at, kind,
			price, previous_price, message, created_at
		) VALUES (
			@rule_id, @user_id, @product_id, @observed_at, @kind,
			@price, @previous_price, NULLIF(@message, ''), now()
		)
		ON CONFLICT (rule_id, product_id, observed_at) DO NOTHING
		RETURNING id, created_at`

	queryGetAlertEvent = `
		SELECT id, rule_id, user_id, product_id, observed_at, kind,
			price, previous_price, COALESCE(message, ''), created_at,
			delivered, delivered_at, delivery_attempts, next_attempt_at, delivery_failed, read
		FROM alert_events
		WHERE id = $1`

	queryListUndeliveredEvents = `
		SELECT id, rule_id, user_id, product_id, observed_at, kind,
			price, previous_price, COALESCE(message, ''), created_at,
			delivered, delivered_at, delivery_attempts, next_attempt_at, delivery_failed, read
		FROM alert_events
		WHERE delivered = false
		  AND delivery_failed = false
		  AND kind = ANY($1)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY created_at ASC
		LIMIT $3`

	queryListDeliveryFailedEvents = `
		SELECT id, rule_id, user_id, product_id, observed_at, kind,
			price, previous_price, COALESCE(message, ''), created_at,
			delivered, delivered_at, delivery_attempts, next_attempt_at, delivery_failed, read
		FROM alert_events
		WHERE delivery_failed = true
		ORDER BY created_at DESC
		LIMIT $1`

	queryMarkEventsDelivered = `
		UPDATE alert_events SET
			delivered       = true,
			delivered_at    = $2,
			next_attempt_at = NULL
		WHERE id = ANY($1)`

	queryRecordDeliveryFailure = `
		UPDATE alert_events SET
			delivery_attempts = delivery_attempts + 1,
			next_attempt_at   = $2,
			delivery_failed   = (delivery_attempts + 1) >= $3
		WHERE id = $1
		RETURNING delivery_attempts, delivery_failed`

	queryMarkEventRead = `
		UPDATE alert_events SET read = true WHERE id = $1`
)

// Task queue queries. The partial unique index on (product_id, kind) for
// open tasks makes EnqueueTask restart-safe; dequeue claims with
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
const (
	queryEnqueueTask = `
		INSERT INTO scrape_tasks (
			product_id, kind, priority, status, attempt, max_attempts, enqueued_at, not_before
		) VALUES (
			@product_id, @kind, @priority, 'pending', 0, @max_attempts, now(), @not_before
		)
		ON CONFLICT (product_id, kind) WHERE status IN ('pending', 'running') DO NOTHING
		RETURNING id, enqueued_at`

	queryDequeueTasks = `
		WITH claimed AS (
			SELECT id FROM scrape_tasks
			WHERE status = 'pending' AND priority = $1 AND not_before <= now()
			ORDER BY not_before ASC, enqueued_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scrape_tasks SET
			status           = 'running',
			attempt          = attempt + 1,
			worker_id        = $2,
			lease_expires_at = now() + make_interval(secs => $4)
		FROM claimed
		WHERE scrape_tasks.id = claimed.id
		RETURNING scrape_tasks.id, COALESCE(scrape_tasks.product_id::text, ''),
			scrape_tasks.kind, scrape_tasks.priority, scrape_tasks.status,
			scrape_tasks.attempt, scrape_tasks.max_attempts, scrape_tasks.enqueued_at,
			scrape_tasks.not_before, scrape_tasks.lease_expires_at,
			COALESCE(scrape_tasks.worker_id, ''), COALESCE(scrape_tasks.last_error, '')`

	queryCompleteTask = `DELETE FROM scrape_tasks WHERE id = $1`

	queryRetryTask = `
		UPDATE scrape_tasks SET
			status           = 'pending',
			not_before       = $2,
			last_error       = NULLIF($3, ''),
			worker_id        = NULL,
			lease_expires_at = NULL
		WHERE id = $1`

	queryFailTask = `
		WITH moved AS (
			DELETE FROM scrape_tasks WHERE id = $1
			RETURNING id, product_id, kind, priority, attempt
		)
		INSERT INTO task_failures (
			id, product_id, kind, priority, attempts, final_status, last_error, failed_at
		)
		SELECT id, product_id, kind, priority, attempt, $2, NULLIF($3, ''), now()
		FROM moved`

	queryFailExhaustedLeases = `
		WITH expired AS (
			DELETE FROM scrape_tasks
			WHERE status = 'running' AND lease_expires_at < $1 AND attempt >= max_attempts
			RETURNING id, product_id, kind, priority, attempt
		)
		INSERT INTO task_failures (
			id, product_id, kind, priority, attempts, final_status, last_error, failed_at
		)
		SELECT id, product_id, kind, priority, attempt, 'timed_out',
			'lease expired after final attempt', now()
		FROM expired`

	queryRecoverExpiredLeases = `
		UPDATE scrape_tasks SET
			status           = 'pending',
			worker_id        = NULL,
			lease_expires_at = NULL,
			not_before       = $1
		WHERE status = 'running' AND lease_expires_at < $1`

	queryQueueStats = `
		SELECT priority,
			COUNT(*) FILTER (WHERE status = 'pending')::int AS pending,
			COUNT(*) FILTER (WHERE status = 'running')::int AS running,
			EXTRACT(EPOCH FROM (now() - MIN(enqueued_at) FILTER (WHERE status = 'pending')))::float8 AS oldest
		FROM scrape_tasks
		GROUP BY priority`

	queryListTaskFailuresAll = `
		SELECT id, COALESCE(product_id::text, ''), kind, priority, attempts,
			final_status, COALESCE(last_error, ''), failed_at, acknowledged
		FROM task_failures
		ORDER BY failed_at DESC
		LIMIT $1`

	queryListTaskFailuresOpen = `
		SELECT id, COALESCE(product_id::text, ''), kind, priority, attempts,
			final_status, COALESCE(last_error, ''), failed_at, acknowledged
		FROM task_failures
		WHERE acknowledged = false
		ORDER BY failed_at DESC
		LIMIT $1`

	queryAcknowledgeTaskFailure = `
		UPDATE task_failures SET acknowledged = true WHERE id = $1`
)

// Analytics queries.
const (
	queryPercentileBands = `
		SELECT percentile_cont(ARRAY[0.1, 0.25, 0.5, 0.75, 0.9])
			WITHIN GROUP (ORDER BY price::float8),
			COUNT(*)::int
		FROM price_points
		WHERE product_id = $1 AND observed_at >= $2`

	queryMonthlyAverages = `
		SELECT to_char(date_trunc('month', observed_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
			AVG(price) AS avg_price,
			COUNT(*)::int AS samples
		FROM price_points
		WHERE product_id = $1
		GROUP BY 1
		ORDER BY avg_price ASC`
)

// Scheduler queries.
const (
	queryInsertJobRun = `
		INSERT INTO job_runs (job_name)
		VALUES ($1)
		RETURNING id`

	queryCompleteJobRun = `
		UPDATE job_runs SET
			completed_at  = now(),
			status        = $2,
			error_text    = $3,
			rows_affected = $4
		WHERE id = $1`

	queryListJobRuns = `
		SELECT id, job_name, started_at, completed_at, status,
			COALESCE(error_text, ''), rows_affected
		FROM job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2`

	queryListLatestJobRuns = `
		SELECT DISTINCT ON (job_name)
			id, job_name, started_at, completed_at, status,
			COALESCE(error_text, ''), rows_affected
		FROM job_runs
		ORDER BY job_name, started_at DESC`

	queryMarkStaleJobRunsCrashed = `
		UPDATE job_runs SET
			status       = 'crashed',
			completed_at = now()
		WHERE status = 'running' AND started_at < $1`

	queryAcquireSchedulerLock = `
		INSERT INTO scheduler_locks (job_name, lock_holder, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_name) DO UPDATE
			SET locked_at   = now(),
				lock_holder = EXCLUDED.lock_holder,
				expires_at  = EXCLUDED.expires_at
			WHERE scheduler_locks.expires_at < now()
		RETURNING job_name`

	queryReleaseSchedulerLock = `
		DELETE FROM scheduler_locks WHERE job_name = $1 AND lock_holder = $2`
)

// Notification queries.
const (
	queryInsertNotificationAttempt = `
		INSERT INTO notification_attempts (event_id, user_id, mode, events, ok, detail, attempted_at)
		VALUES (@event_id, @user_id, @mode, @events, @ok, NULLIF(@detail, ''), now())
		RETURNING id, attempted_at`
)

// Retention queries.
const (
	queryDeletePricePointsBefore          = `DELETE FROM price_points WHERE observed_at < $1`
	queryDeleteTaskFailuresBefore         = `DELETE FROM task_failures WHERE failed_at < $1`
	queryDeleteJobRunsBefore              = `DELETE FROM job_runs WHERE started_at < $1`
	queryDeleteNotificationAttemptsBefore = `DELETE FROM notification_attempts WHERE attempted_at < $1`
)
