package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status identifies the board column a task belongs to.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists the columns in display order.
var Statuses = [...]Status{StatusBacklog, StatusInProgress, StatusDone}

// Valid reports whether s is one of the three board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus validates raw input as a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, raw)
	}
	return s, nil
}

// Priority is the user assigned importance of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority validates raw input as a Priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(raw)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, raw)
	}
	return p, nil
}

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// Task is a single card on a user's board.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Order       int64      `json:"order"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Version is the storage concurrency token of the row the task was read from.
	Version string `json:"-"`
}

// Clone returns a copy of t that shares no pointers with it.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// NormalizeTitle trims and validates a task title.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, MaxTitleLength)
	}
	return title, nil
}

// NormalizeDescription trims and validates a task description. Empty is allowed.
func NormalizeDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return "", fmt.Errorf("%w: description exceeds %d characters", ErrInvalidArgument, MaxDescriptionLength)
	}
	return desc, nil
}
