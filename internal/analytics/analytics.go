// Package analytics derives read-only volatility, trend and insight views
// from the daily summaries and price points the ingest path maintains.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	domain "pricewatch/pkg/types"
)

// Store is the slice of the persistence layer the analytics views read.
type Store interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListDailySummaries(ctx context.Context, productID string, from, to time.Time) ([]domain.DailySummary, error)
	PercentileBands(ctx context.Context, productID string, from time.Time) (*domain.PercentileBands, int, error)
	MonthlyAverages(ctx context.Context, productID string) ([]domain.MonthlyRank, error)
}

const defaultWindow = 90 * 24 * time.Hour

// Service answers product analytics queries. Everything here is derived
// from data already persisted; nothing writes.
type Service struct {
	store Store
}

// NewService creates an analytics service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Volatility returns per-day spread statistics for [from, to]. A zero to
// means now; a zero from means 90 days before to.
func (s *Service) Volatility(
	ctx context.Context,
	productID string,
	from, to time.Time,
) (*domain.VolatilitySummary, error) {
	from, to = normalizeWindow(from, to)

	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListDailySummaries(ctx, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading daily summaries: %w", err)
	}

	days := make([]domain.VolatilityDay, 0, len(rows))
	for _, row := range rows {
		days = append(days, domain.VolatilityDay{
			Day:     row.Day,
			Low:     row.Low,
			High:    row.High,
			Avg:     dayAverage(row),
			StdDev:  dayStdDev(row),
			Samples: row.Count,
		})
	}

	return &domain.VolatilitySummary{
		ProductID: productID,
		From:      from,
		To:        to,
		Days:      days,
	}, nil
}

// Trend returns daily open/close movement plus the whole-window delta.
func (s *Service) Trend(
	ctx context.Context,
	productID string,
	from, to time.Time,
) (*domain.TrendSummary, error) {
	from, to = normalizeWindow(from, to)

	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListDailySummaries(ctx, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading daily summaries: %w", err)
	}

	out := &domain.TrendSummary{
		ProductID: productID,
		From:      from,
		To:        to,
		Days:      make([]domain.TrendDay, 0, len(rows)),
	}

	for _, row := range rows {
		delta := row.Close.Sub(row.Open)
		out.Days = append(out.Days, domain.TrendDay{
			Day:      row.Day,
			Open:     row.Open,
			Close:    row.Close,
			Delta:    delta,
			DeltaPct: deltaPct(row.Open, delta),
		})
	}

	if len(rows) > 0 {
		out.WindowOpen = rows[0].Open
		out.WindowClose = rows[len(rows)-1].Close
		out.WindowDelta = out.WindowClose.Sub(out.WindowOpen)
	}

	return out, nil
}

// Insight returns where the current price sits in the window's
// distribution and which calendar months historically run cheap.
func (s *Service) Insight(
	ctx context.Context,
	productID string,
	from, to time.Time,
) (*domain.InsightSummary, error) {
	from, to = normalizeWindow(from, to)

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	bands, samples, err := s.store.PercentileBands(ctx, productID, from)
	if err != nil {
		return nil, fmt.Errorf("loading percentile bands: %w", err)
	}

	months, err := s.store.MonthlyAverages(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("loading monthly averages: %w", err)
	}

	out := &domain.InsightSummary{
		ProductID:   productID,
		From:        from,
		To:          to,
		SampleCount: samples,
		Bands:       *bands,
		BestMonths:  topMonths(months, 3),
	}

	if product.CurrentPrice != nil && samples > 0 {
		out.CurrentPrice = product.CurrentPrice
		out.CurrentBand = bandFor(*product.CurrentPrice, *bands)
	}

	return out, nil
}

// dayAverage computes the day's mean price from the running sum.
func dayAverage(d domain.DailySummary) decimal.Decimal {
	if d.Count == 0 {
		return decimal.Zero
	}
	return d.Sum.Div(decimal.NewFromInt(int64(d.Count))).Round(4)
}

// dayStdDev computes the population standard deviation from the running
// sum and sum of squares. Float rounding can push the variance a hair
// below zero; clamp it.
func dayStdDev(d domain.DailySummary) decimal.Decimal {
	if d.Count < 2 {
		return decimal.Zero
	}

	n := float64(d.Count)
	mean := d.Sum.InexactFloat64() / n
	variance := d.SumSquares.InexactFloat64()/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return decimal.NewFromFloat(math.Sqrt(variance)).Round(4)
}

func deltaPct(open, delta decimal.Decimal) float64 {
	if open.IsZero() {
		return 0
	}
	return delta.Div(open).InexactFloat64() * 100
}

// bandFor names the distribution band a price falls into.
func bandFor(price decimal.Decimal, b domain.PercentileBands) string {
	switch {
	case price.LessThan(b.P10):
		return "below_p10"
	case price.LessThanOrEqual(b.P25):
		return "p10_p25"
	case price.LessThanOrEqual(b.P50):
		return "p25_p50"
	case price.LessThanOrEqual(b.P75):
		return "p50_p75"
	case price.LessThanOrEqual(b.P90):
		return "p75_p90"
	default:
		return "above_p90"
	}
}

func topMonths(months []domain.MonthlyRank, n int) []domain.MonthlyRank {
	if len(months) <= n {
		return months
	}
	return months[:n]
}

func normalizeWindow(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultWindow)
	}
	return from, to
}
