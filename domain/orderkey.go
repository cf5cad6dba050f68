package domain

import "math"

const (
	// Gap is the spacing between neighbouring keys after appends and compaction.
	Gap int64 = 1000
	// BaseKey is assigned to the first task of an empty column.
	BaseKey = Gap
)

// KeyBetween returns an order key strictly between prev and next. A nil prev means
// the key goes to the head of the column, a nil next means it goes to the tail.
// ok is false when no such key exists: the neighbours are adjacent integers or the
// head/tail step would leave the int64 range. Callers compact the column then.
func KeyBetween(prev, next *int64) (key int64, ok bool) {
	switch {
	case prev == nil && next == nil:
		return BaseKey, true
	case prev == nil:
		if *next < math.MinInt64+Gap {
			return 0, false
		}
		return *next - Gap, true
	case next == nil:
		if *prev > math.MaxInt64-Gap {
			return 0, false
		}
		return *prev + Gap, true
	}
	lo, hi := *prev, *next
	// hi-lo would overflow when the keys sit on opposite ends of the range.
	if lo >= hi || (lo < 0 && hi > math.MaxInt64+lo) {
		return 0, false
	}
	if hi-lo < 2 {
		return 0, false
	}
	return lo + (hi-lo)/2, true
}

// AppendKey returns the key placing a task after the current maximum of a column.
// ok is false when the column has no headroom left at its tail.
func AppendKey(max *int64) (int64, bool) {
	return KeyBetween(max, nil)
}

// Compact returns n evenly spaced keys starting at BaseKey.
func Compact(n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i+1) * Gap
	}
	return keys
}
