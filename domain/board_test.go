package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestProjectGroupsAndSorts(t *testing.T) {
	tasks := []Task{
		{ID: "c", Status: StatusBacklog, Order: 3000},
		{ID: "a", Status: StatusBacklog, Order: 1000},
		{ID: "d", Status: StatusDone, Order: 1000},
		{ID: "b", Status: StatusBacklog, Order: 2000},
		{ID: "x", Status: Status("archived"), Order: 1},
	}
	b := Project(tasks)

	ids := func(ts []Task) []string {
		out := []string{}
		for _, t := range ts {
			out = append(out, t.ID)
		}
		return out
	}
	if got := ids(b.Columns.Backlog); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("backlog order %v", got)
	}
	if len(b.Columns.InProgress) != 0 || b.Columns.InProgress == nil {
		t.Fatalf("expected empty non-nil in_progress, got %#v", b.Columns.InProgress)
	}
	if got := ids(b.Columns.Done); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("done order %v", got)
	}
	if b.Totals != (Totals{All: 4, Done: 1}) {
		t.Fatalf("unexpected totals %+v", b.Totals)
	}
	if b.Open() != 3 {
		t.Fatalf("expected 3 open tasks, got %d", b.Open())
	}
}

func TestProjectEmptyBoardHasThreeArrays(t *testing.T) {
	b := Project(nil)
	payload, err := sonic.Marshal(b)
	if err != nil {
		t.Fatalf("marshal board: %v", err)
	}
	want := `{"columns":{"backlog":[],"in_progress":[],"done":[]},"totals":{"all":0,"done":0}}`
	if string(payload) != want {
		t.Fatalf("got %s want %s", payload, want)
	}
}

func TestProjectTieBreaksByID(t *testing.T) {
	b := Project([]Task{
		{ID: "b", Status: StatusDone, Order: 1000},
		{ID: "a", Status: StatusDone, Order: 1000},
	})
	if b.Columns.Done[0].ID != "a" {
		t.Fatalf("expected id tie break, got %v", b.Columns.Done)
	}
}

func TestCloneIsDeep(t *testing.T) {
	due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	b := Project([]Task{{ID: "a", Status: StatusBacklog, Order: 1, DueDate: &due}})
	c := b.Clone()

	c.Columns.Backlog[0].Title = "changed"
	*c.Columns.Backlog[0].DueDate = due.Add(time.Hour)
	c.Columns.Backlog = append(c.Columns.Backlog, Task{ID: "z"})

	if b.Columns.Backlog[0].Title != "" || !b.Columns.Backlog[0].DueDate.Equal(due) {
		t.Fatalf("clone shares task data: %+v", b.Columns.Backlog[0])
	}
	if len(b.Columns.Backlog) != 1 {
		t.Fatalf("clone shares slice: %d", len(b.Columns.Backlog))
	}
}

func TestFind(t *testing.T) {
	b := Project([]Task{
		{ID: "a", Status: StatusBacklog, Order: 1},
		{ID: "b", Status: StatusInProgress, Order: 1},
		{ID: "c", Status: StatusInProgress, Order: 2},
	})
	s, i, ok := b.Find("c")
	if !ok || s != StatusInProgress || i != 1 {
		t.Fatalf("Find(c) = %s %d %v", s, i, ok)
	}
	if _, _, ok := b.Find("missing"); ok {
		t.Fatal("found missing task")
	}
}

func TestTaskMarshalIncludesZeroOrder(t *testing.T) {
	payload, err := sonic.Marshal(Task{ID: "t1", Title: "Title", Status: StatusBacklog, Order: 0})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	var decoded map[string]any
	if err := sonic.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["order"]; !ok {
		t.Fatalf("expected order field to be present, got %s", payload)
	}
	if _, ok := decoded["Version"]; ok {
		t.Fatalf("version must not be serialized: %s", payload)
	}
}

func TestNormalizeTitle(t *testing.T) {
	if _, err := NormalizeTitle("   "); err == nil {
		t.Fatal("expected error for blank title")
	}
	got, err := NormalizeTitle("  Read chapter 3 ")
	if err != nil || got != "Read chapter 3" {
		t.Fatalf("got %q %v", got, err)
	}
	long := make([]rune, MaxTitleLength+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := NormalizeTitle(string(long)); err == nil {
		t.Fatal("expected error for long title")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		if _, err := ParseStatus(string(s)); err != nil {
			t.Fatalf("ParseStatus(%s): %v", s, err)
		}
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}
