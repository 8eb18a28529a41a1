package mutation

// Toggle is the delta of a boolean flag paired with a counter, e.g. liked
// and the like count.
type Toggle struct {
	Before       bool
	After        bool
	CounterDelta int
}

// Flip returns the toggle that inverts current.
func Flip(current bool) Toggle {
	t := Toggle{Before: current, After: !current, CounterDelta: 1}
	if current {
		t.CounterDelta = -1
	}
	return t
}

// Invert returns the exact inverse of t.
func (t Toggle) Invert() Toggle {
	return Toggle{Before: t.After, After: t.Before, CounterDelta: -t.CounterDelta}
}

// ApplyTo writes t into flag and count. Counters never go below zero, so the
// returned toggle records the delta that actually landed; inverting it
// restores the previous values exactly.
func (t Toggle) ApplyTo(flag *bool, count *int) Toggle {
	*flag = t.After
	next := *count + t.CounterDelta
	if next < 0 {
		next = 0
	}
	applied := Toggle{Before: t.Before, After: t.After, CounterDelta: next - *count}
	*count = next
	return applied
}
