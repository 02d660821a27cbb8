package notify

import (
	"fmt"
	"strings"

	domain "pricewatch/pkg/types"
)

// alertKindOrder fixes the section order in digests and the kind order in
// store queries, keeping output stable for users and tests alike.
var alertKindOrder = []domain.AlertKind{
	domain.AlertPriceDrop,
	domain.AlertTargetReached,
	domain.AlertBackInStock,
	domain.AlertLowestEver,
}

func subjectFor(kind domain.AlertKind) string {
	switch kind {
	case domain.AlertPriceDrop:
		return "Price drop"
	case domain.AlertTargetReached:
		return "Target price reached"
	case domain.AlertBackInStock:
		return "Back in stock"
	case domain.AlertLowestEver:
		return "Lowest price ever"
	}
	return "Price alert"
}

// renderDigest builds the plain-text digest for one user's events, grouped
// by kind with the per-event messages composed at evaluation time.
func renderDigest(events []domain.AlertEvent) (subject, body string) {
	if len(events) == 1 {
		subject = "Price alerts: 1 update"
	} else {
		subject = fmt.Sprintf("Price alerts: %d updates", len(events))
	}

	byKind := make(map[domain.AlertKind][]domain.AlertEvent)
	for _, ev := range events {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}

	var b strings.Builder
	for _, kind := range alertKindOrder {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d)\n", subjectFor(kind), len(group))
		for _, ev := range group {
			fmt.Fprintf(&b, "  - %s\n", ev.Message)
		}
		b.WriteString("\n")
	}
	return subject, strings.TrimRight(b.String(), "\n")
}
