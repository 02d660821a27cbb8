package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	domain "pricewatch/pkg/types"
)

// Candidate is one rule that matched a new observation, with the
// user-facing message composed at evaluation time so the dispatcher
// never needs the price series.
type Candidate struct {
	Rule    domain.AlertRule
	Message string
}

// Evaluate runs the rule set against one new observation. prev is the
// newest point strictly before curr, nil when curr opens the series;
// priorLowest is the minimum price over all points strictly before curr,
// nil for the same reason. The result is a pure function of its inputs:
// replayed ingestion produces the same candidates, and the storage-level
// (rule, observation) uniqueness key absorbs the duplicates.
func Evaluate(
	prev *domain.PricePoint,
	curr domain.PricePoint,
	priorLowest *decimal.Decimal,
	title string,
	rules []domain.AlertRule,
) []Candidate {
	var out []Candidate
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		msg, fired := evaluateRule(&r, prev, curr, priorLowest, title)
		if fired {
			out = append(out, Candidate{Rule: r, Message: msg})
		}
	}
	return out
}

func evaluateRule(
	r *domain.AlertRule,
	prev *domain.PricePoint,
	curr domain.PricePoint,
	priorLowest *decimal.Decimal,
	title string,
) (string, bool) {
	switch r.Kind {
	case domain.AlertPriceDrop:
		if prev == nil || !curr.Price.LessThan(prev.Price) {
			return "", false
		}
		return fmt.Sprintf("%s fell to %s (was %s)",
			title, money(curr.Price, curr.Currency), money(prev.Price, curr.Currency)), true

	case domain.AlertTargetReached:
		if r.Threshold == nil {
			return "", false
		}
		// Edge-triggered: the previous price must have been above the
		// threshold, so the alert fires once per crossing rather than
		// every cycle the price stays below. A series opening at or
		// below the threshold counts as a crossing.
		if curr.Price.GreaterThan(*r.Threshold) {
			return "", false
		}
		if prev != nil && !prev.Price.GreaterThan(*r.Threshold) {
			return "", false
		}
		return fmt.Sprintf("%s hit your %s target at %s",
			title, money(*r.Threshold, curr.Currency), money(curr.Price, curr.Currency)), true

	case domain.AlertBackInStock:
		if prev == nil || prev.Available || !curr.Available {
			return "", false
		}
		return fmt.Sprintf("%s is back in stock at %s",
			title, money(curr.Price, curr.Currency)), true

	case domain.AlertLowestEver:
		// Strict new minimum; the first point of a series never fires.
		if priorLowest == nil || !curr.Price.LessThan(*priorLowest) {
			return "", false
		}
		return fmt.Sprintf("%s at its lowest ever: %s",
			title, money(curr.Price, curr.Currency)), true
	}
	return "", false
}

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}
