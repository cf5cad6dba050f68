package domain

import "sort"

// Columns holds the ordered tasks of each status.
type Columns struct {
	Backlog    []Task `json:"backlog"`
	InProgress []Task `json:"in_progress"`
	Done       []Task `json:"done"`
}

// Totals aggregates task counts across a board.
type Totals struct {
	All  int `json:"all"`
	Done int `json:"done"`
}

// Board is the read-only projection of a user's tasks.
type Board struct {
	Columns Columns `json:"columns"`
	Totals  Totals  `json:"totals"`
}

// EmptyBoard returns a board with three empty, non-nil columns.
func EmptyBoard() Board {
	return Board{Columns: Columns{Backlog: []Task{}, InProgress: []Task{}, Done: []Task{}}}
}

// Column returns a pointer to the slice backing status s, or nil for an unknown status.
func (b *Board) Column(s Status) *[]Task {
	switch s {
	case StatusBacklog:
		return &b.Columns.Backlog
	case StatusInProgress:
		return &b.Columns.InProgress
	case StatusDone:
		return &b.Columns.Done
	}
	return nil
}

// Open counts the tasks not yet done.
func (b Board) Open() int {
	return b.Totals.All - b.Totals.Done
}

// Recount refreshes Totals from the column contents.
func (b *Board) Recount() {
	b.Totals = Totals{
		All:  len(b.Columns.Backlog) + len(b.Columns.InProgress) + len(b.Columns.Done),
		Done: len(b.Columns.Done),
	}
}

// Find locates a task by id and reports its column and position.
func (b *Board) Find(id string) (Status, int, bool) {
	for _, s := range Statuses {
		for i, t := range *b.Column(s) {
			if t.ID == id {
				return s, i, true
			}
		}
	}
	return "", -1, false
}

// Clone deep copies the board.
func (b Board) Clone() Board {
	out := Board{Totals: b.Totals}
	for _, s := range Statuses {
		src := *b.Column(s)
		dst := make([]Task, len(src))
		for i, t := range src {
			dst[i] = t.Clone()
		}
		*out.Column(s) = dst
	}
	return out
}

// Project groups tasks into the three columns, each sorted ascending by order key.
// Tasks with an unknown status are dropped.
func Project(tasks []Task) Board {
	b := EmptyBoard()
	for _, t := range tasks {
		col := b.Column(t.Status)
		if col == nil {
			continue
		}
		*col = append(*col, t)
	}
	for _, s := range Statuses {
		SortColumn(*b.Column(s))
	}
	b.Recount()
	return b
}

// SortColumn orders tasks by key, then id so equal keys still sort deterministically.
func SortColumn(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
}
