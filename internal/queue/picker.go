package queue

import (
	domain "pricewatch/pkg/types"
)

// picker deals out scrape classes in weighted round-robin order. Each
// cycle grants every class its configured number of turns, so low-priority
// work is never starved no matter how deep the high class backlog runs.
// Not safe for concurrent use; each slot owns its own picker.
type picker struct {
	classes []domain.Priority
	weights []int
	left    []int
	idx     int
}

func newPicker(w Weights) *picker {
	classes := domain.ScrapeClasses()
	pk := &picker{
		classes: classes,
		weights: make([]int, len(classes)),
		left:    make([]int, len(classes)),
	}
	for i, c := range classes {
		pk.weights[i] = w.of(c)
		if pk.weights[i] <= 0 {
			pk.weights[i] = 1
		}
	}
	copy(pk.left, pk.weights)
	return pk
}

// next returns the class whose turn it is and consumes one turn. Turns
// spent on classes that turn out to be empty are forfeited; the caller
// tracks which classes it has already found empty within one claim.
func (pk *picker) next() domain.Priority {
	if pk.exhausted() {
		copy(pk.left, pk.weights)
		pk.idx = 0
	}
	for pk.left[pk.idx] == 0 {
		pk.idx = (pk.idx + 1) % len(pk.classes)
	}
	c := pk.classes[pk.idx]
	pk.left[pk.idx]--
	return c
}

func (pk *picker) exhausted() bool {
	for _, n := range pk.left {
		if n > 0 {
			return false
		}
	}
	return true
}
