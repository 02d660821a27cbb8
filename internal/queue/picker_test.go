package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "pricewatch/pkg/types"
)

func drawClasses(pk *picker, n int) []domain.Priority {
	out := make([]domain.Priority, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pk.next())
	}
	return out
}

func TestPicker_WeightedSequence(t *testing.T) {
	t.Parallel()

	pk := newPicker(Weights{High: 4, Default: 2, Low: 1})

	cycle := []domain.Priority{
		domain.PriorityHigh, domain.PriorityHigh, domain.PriorityHigh, domain.PriorityHigh,
		domain.PriorityDefault, domain.PriorityDefault,
		domain.PriorityLow,
	}
	want := append(append([]domain.Priority{}, cycle...), cycle...)

	assert.Equal(t, want, drawClasses(pk, len(want)))
}

func TestPicker_ZeroWeightsFallBackToOneTurn(t *testing.T) {
	t.Parallel()

	pk := newPicker(Weights{})

	want := []domain.Priority{
		domain.PriorityHigh, domain.PriorityDefault, domain.PriorityLow,
		domain.PriorityHigh, domain.PriorityDefault, domain.PriorityLow,
	}
	assert.Equal(t, want, drawClasses(pk, len(want)))
}

func TestPicker_EveryClassGetsATurnEachCycle(t *testing.T) {
	t.Parallel()

	pk := newPicker(Weights{High: 9, Default: 3, Low: 2})

	seen := map[domain.Priority]int{}
	for _, c := range drawClasses(pk, 14) {
		seen[c]++
	}
	assert.Equal(t, 9, seen[domain.PriorityHigh])
	assert.Equal(t, 3, seen[domain.PriorityDefault])
	assert.Equal(t, 2, seen[domain.PriorityLow])
}
