//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pricewatch/internal/store"
	domain "pricewatch/pkg/types"
)

func setupPostgres(t *testing.T) *store.PostgresStore {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pricewatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := store.NewPostgresStore(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	require.NoError(t, s.Migrate(ctx))

	return s
}

func seedRetailer(t *testing.T, s *store.PostgresStore, name string) *domain.Retailer {
	t.Helper()
	r := &domain.Retailer{
		Name:              name,
		BaseURL:           "https://" + name + ".example.com",
		RequestsPerMinute: 30,
		Burst:             5,
		Active:            true,
	}
	require.NoError(t, s.UpsertRetailer(context.Background(), r))
	return r
}

func seedProduct(t *testing.T, s *store.PostgresStore, retailerID, slug string) *domain.Product {
	t.Helper()
	p := &domain.Product{
		RetailerID:     retailerID,
		SourceURL:      "https://shop.example.com/p/" + slug,
		Title:          "Widget " + slug,
		SKU:            "SKU-" + slug,
		Currency:       "USD",
		CadenceSeconds: 3600,
		PriorityScore:  5,
		Enabled:        true,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func point(productID, price string, at time.Time) *domain.PricePoint {
	return &domain.PricePoint{
		ProductID:  productID,
		Price:      decimal.RequireFromString(price),
		Currency:   "USD",
		Available:  true,
		ObservedAt: at,
	}
}

func decEq(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)),
		"want %s, got %s", want, got)
}

// Fixed mid-day instant keeps day-boundary arithmetic deterministic.
var obsBase = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

func TestPostgresStore_Ping(t *testing.T) {
	s := setupPostgres(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestPostgresStore_Retailers(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		r := seedRetailer(t, s, "acme")
		assert.NotEmpty(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())

		got, err := s.GetRetailer(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme", got.Name)
		assert.Equal(t, 30, got.RequestsPerMinute)
	})

	t.Run("upsert by name keeps the id", func(t *testing.T) {
		first := seedRetailer(t, s, "megastore")

		again := &domain.Retailer{
			Name:              "megastore",
			BaseURL:           "https://megastore.example.com",
			RequestsPerMinute: 10,
			Burst:             2,
			Active:            false,
		}
		require.NoError(t, s.UpsertRetailer(ctx, again))
		assert.Equal(t, first.ID, again.ID)

		got, err := s.GetRetailer(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.RequestsPerMinute)
		assert.False(t, got.Active)
	})

	t.Run("active filter", func(t *testing.T) {
		all, err := s.ListRetailers(ctx, false)
		require.NoError(t, err)
		active, err := s.ListRetailers(ctx, true)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Len(t, active, 1)
		assert.Equal(t, "acme", active[0].Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetRetailer(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresStore_Products(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")

	t.Run("create and get round-trip", func(t *testing.T) {
		p := seedProduct(t, s, r.ID, "gadget-1")
		assert.NotEmpty(t, p.ID)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Widget gadget-1", got.Title)
		assert.Equal(t, "SKU-gadget-1", got.SKU)
		assert.Equal(t, 3600, got.CadenceSeconds)
		assert.Nil(t, got.CurrentPrice)
		assert.True(t, got.Enabled)
	})

	t.Run("get by url", func(t *testing.T) {
		got, err := s.GetProductByURL(ctx, "https://shop.example.com/p/gadget-1")
		require.NoError(t, err)
		assert.Equal(t, "Widget gadget-1", got.Title)
	})

	t.Run("duplicate url rejected", func(t *testing.T) {
		dup := &domain.Product{
			RetailerID:     r.ID,
			SourceURL:      "https://shop.example.com/p/gadget-1",
			Title:          "Duplicate",
			Currency:       "USD",
			CadenceSeconds: 3600,
			PriorityScore:  5,
			Enabled:        true,
		}
		assert.Error(t, s.CreateProduct(ctx, dup))
	})

	t.Run("list with filters", func(t *testing.T) {
		p2 := seedProduct(t, s, r.ID, "gadget-2")
		require.NoError(t, s.SetProductEnabled(ctx, p2.ID, false))

		enabled := true
		products, total, err := s.ListProducts(ctx, &store.ProductQuery{Enabled: &enabled})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, products, 1)
		assert.Equal(t, "Widget gadget-1", products[0].Title)
	})

	t.Run("update tracking", func(t *testing.T) {
		p := seedProduct(t, s, r.ID, "gadget-3")
		require.NoError(t, s.UpdateProductTracking(ctx, p.ID, 7200, false))

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 7200, got.CadenceSeconds)
		assert.False(t, got.Enabled)
	})

	t.Run("delete cascades", func(t *testing.T) {
		p := seedProduct(t, s, r.ID, "gadget-4")
		require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "10.00", obsBase)))
		require.NoError(t, s.DeleteProduct(ctx, p.ID))

		_, err := s.GetProduct(ctx, p.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.LatestPricePoint(ctx, p.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresStore_AppendPricePoint(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p := seedProduct(t, s, r.ID, "append-1")

	t.Run("first point seeds the summary", func(t *testing.T) {
		require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "99.90", obsBase)))

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CurrentPrice)
		decEq(t, "99.90", *got.CurrentPrice)
		decEq(t, "99.90", *got.LowestPrice)
		decEq(t, "99.90", *got.HighestPrice)
	})

	t.Run("duplicate observation is a no-op", func(t *testing.T) {
		err := s.AppendPricePoint(ctx, point(p.ID, "42.00", obsBase))
		require.ErrorIs(t, err, store.ErrDuplicatePoint)

		// Neither the summary counters nor the current price moved.
		sums, err := s.ListDailySummaries(ctx, p.ID, obsBase.AddDate(0, 0, -1), obsBase.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.Equal(t, 1, sums[0].Count)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		decEq(t, "99.90", *got.CurrentPrice)
	})

	t.Run("newer point moves the current price", func(t *testing.T) {
		require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "89.90", obsBase.Add(time.Hour))))

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		decEq(t, "89.90", *got.CurrentPrice)
		decEq(t, "89.90", *got.LowestPrice)
		decEq(t, "99.90", *got.HighestPrice)
	})

	t.Run("backfill updates extremes but never the current price", func(t *testing.T) {
		require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "49.90", obsBase.Add(-time.Hour))))

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		decEq(t, "89.90", *got.CurrentPrice) // newest observation still wins
		decEq(t, "49.90", *got.LowestPrice)
		decEq(t, "99.90", *got.HighestPrice)
	})

	t.Run("daily summary follows observation order", func(t *testing.T) {
		sums, err := s.ListDailySummaries(ctx, p.ID, obsBase.AddDate(0, 0, -1), obsBase.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, sums, 1)

		day := sums[0]
		assert.Equal(t, 3, day.Count)
		decEq(t, "49.90", day.Open)  // earliest observed_at of the day
		decEq(t, "89.90", day.Close) // latest observed_at of the day
		decEq(t, "49.90", day.Low)
		decEq(t, "99.90", day.High)
		decEq(t, "239.70", day.Sum)
	})

	t.Run("latest and prior lookups", func(t *testing.T) {
		latest, err := s.LatestPricePoint(ctx, p.ID)
		require.NoError(t, err)
		decEq(t, "89.90", latest.Price)

		prior, err := s.PriorPricePoint(ctx, p.ID, latest.ObservedAt)
		require.NoError(t, err)
		decEq(t, "99.90", prior.Price)

		_, err = s.PriorPricePoint(ctx, p.ID, obsBase.Add(-time.Hour))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("prior lowest excludes the observation itself", func(t *testing.T) {
		lowest, err := s.PriorLowestPrice(ctx, p.ID, obsBase.Add(time.Hour))
		require.NoError(t, err)
		decEq(t, "49.90", lowest)

		lowest, err = s.PriorLowestPrice(ctx, p.ID, obsBase)
		require.NoError(t, err)
		decEq(t, "49.90", lowest)

		_, err = s.PriorLowestPrice(ctx, p.ID, obsBase.Add(-time.Hour))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list within range", func(t *testing.T) {
		points, err := s.ListPricePoints(ctx, p.ID, obsBase.Add(-2*time.Hour), obsBase.Add(2*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, points, 3)
		// Newest first.
		decEq(t, "89.90", points[0].Price)
		decEq(t, "49.90", points[2].Price)
	})
}

func TestPostgresStore_ScrapeBookkeeping(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p := seedProduct(t, s, r.ID, "streak-1")

	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("failures accumulate and mark stale at the threshold", func(t *testing.T) {
		for i := 1; i <= 2; i++ {
			streak, err := s.RecordScrapeFailure(ctx, p.ID, now, 3)
			require.NoError(t, err)
			assert.Equal(t, i, streak)
		}

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, got.Stale)

		streak, err := s.RecordScrapeFailure(ctx, p.ID, now, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, streak)

		got, err = s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.Stale)
		require.NotNil(t, got.LastCheckedAt)
	})

	t.Run("success resets the streak and the stale flag", func(t *testing.T) {
		require.NoError(t, s.RecordScrapeSuccess(ctx, p.ID, now))

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.FailureStreak)
		assert.False(t, got.Stale)
	})
}

func TestPostgresStore_ListDueProducts(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")

	never := seedProduct(t, s, r.ID, "never-checked")
	fresh := seedProduct(t, s, r.ID, "fresh")
	overdue := seedProduct(t, s, r.ID, "overdue")
	disabled := seedProduct(t, s, r.ID, "disabled")

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.RecordScrapeSuccess(ctx, fresh.ID, now))
	require.NoError(t, s.RecordScrapeSuccess(ctx, overdue.ID, now.Add(-2*time.Hour)))
	require.NoError(t, s.RecordScrapeSuccess(ctx, disabled.ID, now.Add(-2*time.Hour)))
	require.NoError(t, s.SetProductEnabled(ctx, disabled.ID, false))

	due, err := s.ListDueProducts(ctx, now, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, p := range due {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, never.ID)
	assert.Contains(t, ids, overdue.ID)
	assert.NotContains(t, ids, fresh.ID)
	assert.NotContains(t, ids, disabled.ID)

	// Never-checked sorts ahead of checked at equal priority.
	assert.Equal(t, never.ID, due[0].ID)
}

func TestPostgresStore_AlertRules(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p := seedProduct(t, s, r.ID, "rules-1")

	threshold := decimal.RequireFromString("75.00")
	rule := &domain.AlertRule{
		UserID:    "user-1",
		ProductID: p.ID,
		Kind:      domain.AlertTargetReached,
		Threshold: &threshold,
		Enabled:   true,
	}
	require.NoError(t, s.CreateAlertRule(ctx, rule))
	assert.NotEmpty(t, rule.ID)

	t.Run("round-trip", func(t *testing.T) {
		got, err := s.GetAlertRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.AlertTargetReached, got.Kind)
		require.NotNil(t, got.Threshold)
		decEq(t, "75.00", *got.Threshold)
	})

	t.Run("nil threshold round-trips", func(t *testing.T) {
		drop := &domain.AlertRule{
			UserID:    "user-2",
			ProductID: p.ID,
			Kind:      domain.AlertPriceDrop,
			Enabled:   true,
		}
		require.NoError(t, s.CreateAlertRule(ctx, drop))

		got, err := s.GetAlertRule(ctx, drop.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Threshold)
	})

	t.Run("filters", func(t *testing.T) {
		byProduct, err := s.ListAlertRules(ctx, p.ID, "", false)
		require.NoError(t, err)
		assert.Len(t, byProduct, 2)

		byUser, err := s.ListAlertRules(ctx, "", "user-1", false)
		require.NoError(t, err)
		assert.Len(t, byUser, 1)

		require.NoError(t, s.SetAlertRuleEnabled(ctx, rule.ID, false))
		enabledOnly, err := s.ListAlertRules(ctx, p.ID, "", true)
		require.NoError(t, err)
		assert.Len(t, enabledOnly, 1)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteAlertRule(ctx, rule.ID))
		_, err := s.GetAlertRule(ctx, rule.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresStore_AlertEventLifecycle(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p := seedProduct(t, s, r.ID, "events-1")

	rule := &domain.AlertRule{
		UserID:    "user-1",
		ProductID: p.ID,
		Kind:      domain.AlertPriceDrop,
		Enabled:   true,
	}
	require.NoError(t, s.CreateAlertRule(ctx, rule))

	prev := decimal.RequireFromString("99.90")
	event := &domain.AlertEvent{
		RuleID:        rule.ID,
		UserID:        "user-1",
		ProductID:     p.ID,
		ObservedAt:    obsBase,
		Kind:          domain.AlertPriceDrop,
		Price:         decimal.RequireFromString("89.90"),
		PreviousPrice: &prev,
		Message:       "price dropped 10.00",
	}
	require.NoError(t, s.InsertAlertEvent(ctx, event))
	assert.NotEmpty(t, event.ID)

	t.Run("same observation never fires twice", func(t *testing.T) {
		dup := &domain.AlertEvent{
			RuleID:     rule.ID,
			UserID:     "user-1",
			ProductID:  p.ID,
			ObservedAt: obsBase,
			Kind:       domain.AlertPriceDrop,
			Price:      decimal.RequireFromString("89.90"),
		}
		assert.ErrorIs(t, s.InsertAlertEvent(ctx, dup), store.ErrDuplicateEvent)
	})

	t.Run("undelivered listing honors the kind filter", func(t *testing.T) {
		now := time.Now().UTC()

		events, err := s.ListUndeliveredEvents(ctx, []domain.AlertKind{domain.AlertPriceDrop}, now, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, event.ID, events[0].ID)

		events, err = s.ListUndeliveredEvents(ctx, []domain.AlertKind{domain.AlertBackInStock}, now, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("delivery failure schedules a retry", func(t *testing.T) {
		next := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)

		attempts, capped, err := s.RecordDeliveryFailure(ctx, event.ID, next, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.False(t, capped)

		// Not due yet.
		events, err := s.ListUndeliveredEvents(ctx, []domain.AlertKind{domain.AlertPriceDrop}, time.Now().UTC(), 10)
		require.NoError(t, err)
		assert.Empty(t, events)

		// Due after next_attempt_at.
		events, err = s.ListUndeliveredEvents(ctx, []domain.AlertKind{domain.AlertPriceDrop}, next.Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("exhausted attempts park the event", func(t *testing.T) {
		next := time.Now().UTC().Add(time.Hour)

		attempts, capped, err := s.RecordDeliveryFailure(ctx, event.ID, next, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.True(t, capped)

		events, err := s.ListUndeliveredEvents(ctx, []domain.AlertKind{domain.AlertPriceDrop}, next.Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, events)

		failed, err := s.ListDeliveryFailedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, event.ID, failed[0].ID)
	})

	t.Run("mark delivered", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, s.MarkEventsDelivered(ctx, []string{event.ID}, at))

		got, err := s.GetAlertEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.True(t, got.Delivered)
		require.NotNil(t, got.DeliveredAt)
		assert.Nil(t, got.NextAttemptAt)
	})

	t.Run("mark read", func(t *testing.T) {
		require.NoError(t, s.MarkEventRead(ctx, event.ID))

		unread := true
		_, total, err := s.ListAlertEvents(ctx, &store.EventQuery{Unread: &unread})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestPostgresStore_TaskQueue(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p1 := seedProduct(t, s, r.ID, "queue-1")
	p2 := seedProduct(t, s, r.ID, "queue-2")

	now := time.Now().UTC().Truncate(time.Microsecond)

	enqueue := func(productID string, kind domain.TaskKind, prio domain.Priority, notBefore time.Time, maxAttempts int) *domain.Task {
		task := &domain.Task{
			ProductID:   productID,
			Kind:        kind,
			Priority:    prio,
			MaxAttempts: maxAttempts,
			NotBefore:   notBefore,
		}
		require.NoError(t, s.EnqueueTask(ctx, task))
		return task
	}

	t.Run("enqueue dedups open tasks", func(t *testing.T) {
		enqueue(p1.ID, domain.TaskScrape, domain.PriorityHigh, now.Add(-time.Hour), 3)

		dup := &domain.Task{
			ProductID:   p1.ID,
			Kind:        domain.TaskScrape,
			Priority:    domain.PriorityHigh,
			MaxAttempts: 3,
			NotBefore:   now,
		}
		assert.ErrorIs(t, s.EnqueueTask(ctx, dup), store.ErrDuplicateTask)
	})

	t.Run("global maintenance tasks dedup on NULL product", func(t *testing.T) {
		enqueue("", domain.TaskRetentionSweep, domain.PriorityMaintenance, now, 5)

		dup := &domain.Task{
			Kind:        domain.TaskRetentionSweep,
			Priority:    domain.PriorityMaintenance,
			MaxAttempts: 5,
			NotBefore:   now,
		}
		assert.ErrorIs(t, s.EnqueueTask(ctx, dup), store.ErrDuplicateTask)
	})

	t.Run("dequeue claims in not_before order", func(t *testing.T) {
		enqueue(p2.ID, domain.TaskScrape, domain.PriorityHigh, now.Add(-30*time.Minute), 3)

		tasks, err := s.DequeueTasks(ctx, domain.PriorityHigh, "worker-1", 10, 30*time.Second)
		require.NoError(t, err)
		require.Len(t, tasks, 2)

		assert.Equal(t, p1.ID, tasks[0].ProductID) // oldest not_before first
		assert.Equal(t, p2.ID, tasks[1].ProductID)
		for _, task := range tasks {
			assert.Equal(t, domain.TaskRunning, task.Status)
			assert.Equal(t, 1, task.Attempt)
			assert.Equal(t, "worker-1", task.WorkerID)
			require.NotNil(t, task.LeaseExpiresAt)
		}

		// Nothing pending in the class anymore.
		again, err := s.DequeueTasks(ctx, domain.PriorityHigh, "worker-2", 10, 30*time.Second)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("future not_before is not claimable", func(t *testing.T) {
		p3 := seedProduct(t, s, r.ID, "queue-3")
		enqueue(p3.ID, domain.TaskScrape, domain.PriorityLow, now.Add(time.Hour), 3)

		tasks, err := s.DequeueTasks(ctx, domain.PriorityLow, "worker-1", 10, 30*time.Second)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("retry returns a task to pending with a delay", func(t *testing.T) {
		p4 := seedProduct(t, s, r.ID, "queue-4")
		task := enqueue(p4.ID, domain.TaskScrape, domain.PriorityDefault, now.Add(-time.Minute), 3)

		claimed, err := s.DequeueTasks(ctx, domain.PriorityDefault, "worker-1", 1, 30*time.Second)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, s.RetryTask(ctx, task.ID, now.Add(-time.Second), "connection refused"))

		reclaimed, err := s.DequeueTasks(ctx, domain.PriorityDefault, "worker-1", 1, 30*time.Second)
		require.NoError(t, err)
		require.Len(t, reclaimed, 1)
		assert.Equal(t, 2, reclaimed[0].Attempt)
		assert.Equal(t, "connection refused", reclaimed[0].LastError)
	})

	t.Run("complete deletes and unblocks re-enqueue", func(t *testing.T) {
		p5 := seedProduct(t, s, r.ID, "queue-5")
		task := enqueue(p5.ID, domain.TaskScrape, domain.PriorityHigh, now.Add(-time.Minute), 3)

		_, err := s.DequeueTasks(ctx, domain.PriorityHigh, "worker-1", 1, 30*time.Second)
		require.NoError(t, err)
		require.NoError(t, s.CompleteTask(ctx, task.ID))

		// The open-task constraint no longer applies.
		enqueue(p5.ID, domain.TaskScrape, domain.PriorityHigh, now, 3)
	})

	t.Run("terminal failure moves the task to the triage queue", func(t *testing.T) {
		p6 := seedProduct(t, s, r.ID, "queue-6")
		task := enqueue(p6.ID, domain.TaskScrape, domain.PriorityDefault, now.Add(-time.Minute), 3)

		claimed, err := s.DequeueTasks(ctx, domain.PriorityDefault, "worker-1", 1, 30*time.Second)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, s.FailTask(ctx, task.ID, domain.FailurePermanent, "page gone"))

		failures, err := s.ListTaskFailures(ctx, true, 10)
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.Equal(t, task.ID, failures[0].ID)
		assert.Equal(t, p6.ID, failures[0].ProductID)
		assert.Equal(t, domain.FailurePermanent, failures[0].FinalStatus)
		assert.Equal(t, "page gone", failures[0].LastError)

		require.NoError(t, s.AcknowledgeTaskFailure(ctx, task.ID))
		open, err := s.ListTaskFailures(ctx, true, 10)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("queue stats snapshot", func(t *testing.T) {
		stats, err := s.QueueStats(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, stats)

		byClass := make(map[domain.Priority]domain.QueueStats, len(stats))
		for _, st := range stats {
			byClass[st.Priority] = st
		}
		high := byClass[domain.PriorityHigh]
		assert.Equal(t, 1, high.Pending) // re-enqueued queue-5 task
		require.NotNil(t, high.OldestPendingAge)
	})
}

func TestPostgresStore_RecoverExpiredLeases(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	retriable := seedProduct(t, s, r.ID, "lease-1")
	exhausted := seedProduct(t, s, r.ID, "lease-2")

	now := time.Now().UTC()

	for _, tc := range []struct {
		productID   string
		maxAttempts int
	}{
		{retriable.ID, 3},
		{exhausted.ID, 1},
	} {
		task := &domain.Task{
			ProductID:   tc.productID,
			Kind:        domain.TaskScrape,
			Priority:    domain.PriorityHigh,
			MaxAttempts: tc.maxAttempts,
			NotBefore:   now.Add(-time.Minute),
		}
		require.NoError(t, s.EnqueueTask(ctx, task))
	}

	// Negative lease expires the claim immediately.
	claimed, err := s.DequeueTasks(ctx, domain.PriorityHigh, "dead-worker", 10, -time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	recovered, timedOut, err := s.RecoverExpiredLeases(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, 1, timedOut)

	// The exhausted task landed in triage as timed_out.
	failures, err := s.ListTaskFailures(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, exhausted.ID, failures[0].ProductID)
	assert.Equal(t, domain.FailureTimedOut, failures[0].FinalStatus)

	// The retriable task is claimable again.
	reclaimed, err := s.DequeueTasks(ctx, domain.PriorityHigh, "worker-2", 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, retriable.ID, reclaimed[0].ProductID)
	assert.Equal(t, 2, reclaimed[0].Attempt)
}

func TestPostgresStore_SchedulerLock(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	t.Run("acquire and contend", func(t *testing.T) {
		ok, err := s.AcquireSchedulerLock(ctx, "scan_due", "holder-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.AcquireSchedulerLock(ctx, "scan_due", "holder-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired lock can be stolen", func(t *testing.T) {
		ok, err := s.AcquireSchedulerLock(ctx, "retention", "holder-a", -time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.AcquireSchedulerLock(ctx, "retention", "holder-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release requires the owning holder", func(t *testing.T) {
		require.NoError(t, s.ReleaseSchedulerLock(ctx, "scan_due", "holder-b"))
		ok, err := s.AcquireSchedulerLock(ctx, "scan_due", "holder-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "wrong holder must not release the lock")

		require.NoError(t, s.ReleaseSchedulerLock(ctx, "scan_due", "holder-a"))
		ok, err = s.AcquireSchedulerLock(ctx, "scan_due", "holder-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPostgresStore_JobRuns(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	id, err := s.InsertJobRun(ctx, "scan_due")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, s.CompleteJobRun(ctx, id, "succeeded", "", 12))

	runs, err := s.ListJobRuns(ctx, "scan_due", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "succeeded", runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
	require.NotNil(t, runs[0].RowsAffected)
	assert.Equal(t, 12, *runs[0].RowsAffected)

	t.Run("latest per job", func(t *testing.T) {
		id2, err := s.InsertJobRun(ctx, "scan_due")
		require.NoError(t, err)
		require.NoError(t, s.CompleteJobRun(ctx, id2, "failed", "boom", 0))

		_, err = s.InsertJobRun(ctx, "retention")
		require.NoError(t, err)

		latest, err := s.ListLatestJobRuns(ctx)
		require.NoError(t, err)
		assert.Len(t, latest, 2)
	})

	t.Run("stale running rows are marked crashed", func(t *testing.T) {
		marked, err := s.RecoverStaleJobRuns(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, marked) // the retention run never completed

		runs, err := s.ListJobRuns(ctx, "retention", 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "crashed", runs[0].Status)
	})
}

func TestPostgresStore_Analytics(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p := seedProduct(t, s, r.ID, "analytics-1")

	june := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	july := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	for i, price := range []string{"100.00", "90.00", "80.00"} {
		require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, price, june.Add(time.Duration(i)*time.Hour))))
	}
	for i, price := range []string{"60.00", "50.00"} {
		require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, price, july.Add(time.Duration(i)*time.Hour))))
	}

	t.Run("percentile bands", func(t *testing.T) {
		bands, samples, err := s.PercentileBands(ctx, p.ID, june.AddDate(0, -1, 0))
		require.NoError(t, err)
		assert.Equal(t, 5, samples)
		decEq(t, "80", bands.P50)
		assert.True(t, bands.P10.LessThan(bands.P90))
	})

	t.Run("percentile bands with no samples", func(t *testing.T) {
		empty := seedProduct(t, s, r.ID, "analytics-empty")
		bands, samples, err := s.PercentileBands(ctx, empty.ID, june)
		require.NoError(t, err)
		assert.Zero(t, samples)
		assert.True(t, bands.P50.IsZero())
	})

	t.Run("monthly averages rank cheapest first", func(t *testing.T) {
		months, err := s.MonthlyAverages(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, months, 2)

		assert.Equal(t, "2025-07", months[0].Month)
		assert.Equal(t, 1, months[0].Rank)
		decEq(t, "55", months[0].AvgPrice)
		assert.Equal(t, 2, months[0].Samples)

		assert.Equal(t, "2025-06", months[1].Month)
		assert.Equal(t, 2, months[1].Rank)
	})

	t.Run("scoring inputs", func(t *testing.T) {
		rule := &domain.AlertRule{
			UserID:    "user-1",
			ProductID: p.ID,
			Kind:      domain.AlertPriceDrop,
			Enabled:   true,
		}
		require.NoError(t, s.CreateAlertRule(ctx, rule))

		// Window wide enough to cover the fixed observation dates.
		inputs, err := s.ListScoringInputs(ctx, 10*365*24*time.Hour)
		require.NoError(t, err)

		var found bool
		for _, in := range inputs {
			if in.ProductID != p.ID {
				continue
			}
			found = true
			assert.InDelta(t, 50.0, in.CurrentPrice, 0.01)
			assert.Equal(t, 1, in.RuleCount)
			assert.Greater(t, in.VolatilityPct, 0.0)
		}
		assert.True(t, found, "product should appear in scoring inputs")
	})
}

func TestPostgresStore_Retention(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	r := seedRetailer(t, s, "acme")
	p := seedProduct(t, s, r.ID, "retention-1")

	old := obsBase.AddDate(0, -13, 0)
	require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "10.00", old)))
	require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "11.00", old.Add(time.Hour))))
	require.NoError(t, s.AppendPricePoint(ctx, point(p.ID, "12.00", obsBase)))

	deleted, err := s.DeletePricePointsBefore(ctx, obsBase.AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	points, err := s.ListPricePoints(ctx, p.ID, old.AddDate(0, -1, 0), obsBase.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestPostgresStore_NotificationAttempts(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	a := &domain.NotificationAttempt{
		UserID: "user-1",
		Mode:   "digest",
		Events: 3,
		OK:     true,
	}
	require.NoError(t, s.InsertNotificationAttempt(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.AttemptedAt.IsZero())

	deleted, err := s.DeleteNotificationAttemptsBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
