package board

import (
	"fmt"

	"studyboard/domain"
)

// placement is the result of resolving a destination index against a column.
type placement struct {
	key   int64
	index int
	// renumbered holds siblings whose keys were rewritten by a compaction pass.
	renumbered []domain.Task
}

// place computes the order key that puts the moving task at toIndex of column.
// The moving task itself is excluded from column if present, and toIndex is clamped
// to the number of remaining siblings.
func place(column []domain.Task, movingID string, toIndex int) (placement, error) {
	siblings := make([]domain.Task, 0, len(column))
	for _, t := range column {
		if t.ID != movingID {
			siblings = append(siblings, t)
		}
	}
	domain.SortColumn(siblings)

	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(siblings) {
		toIndex = len(siblings)
	}

	if key, ok := keyAt(siblings, toIndex); ok {
		return placement{key: key, index: toIndex}, nil
	}

	renumbered := compact(siblings)
	key, ok := keyAt(siblings, toIndex)
	if !ok {
		return placement{}, fmt.Errorf("no order key available at index %d after compaction", toIndex)
	}
	return placement{key: key, index: toIndex, renumbered: renumbered}, nil
}

// keyAt returns a key between siblings[index-1] and siblings[index].
func keyAt(siblings []domain.Task, index int) (int64, bool) {
	var prev, next *int64
	if index > 0 {
		prev = &siblings[index-1].Order
	}
	if index < len(siblings) {
		next = &siblings[index].Order
	}
	return domain.KeyBetween(prev, next)
}

// compact assigns fresh evenly spaced keys to siblings in place and returns copies
// of the tasks whose key actually changed.
func compact(siblings []domain.Task) []domain.Task {
	keys := domain.Compact(len(siblings))
	changed := make([]domain.Task, 0, len(siblings))
	for i := range siblings {
		if siblings[i].Order == keys[i] {
			continue
		}
		siblings[i].Order = keys[i]
		changed = append(changed, siblings[i].Clone())
	}
	return changed
}

// maxKey returns the largest key in column, or nil for an empty column.
func maxKey(column []domain.Task) *int64 {
	var max *int64
	for i := range column {
		if max == nil || column[i].Order > *max {
			max = &column[i].Order
		}
	}
	return max
}
