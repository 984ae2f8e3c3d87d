package task

import (
	"strings"
)

// Board is a client-side copy of the relay's task list. It applies the
// relay's broadcast events; applying the same event twice leaves the list
// as applying it once did. Board is not safe for concurrent use.
type Board struct {
	tasks []Task
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// Tasks returns a copy of the current list in relay order.
func (b *Board) Tasks() []Task {
	out := make([]Task, len(b.tasks))
	for i, t := range b.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns the task with the given id.
func (b *Board) Get(id string) (Task, bool) {
	for _, t := range b.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return Task{}, false
}

// Len returns the number of tasks on the board.
func (b *Board) Len() int { return len(b.tasks) }

// Reset replaces the whole list (tasks:all).
func (b *Board) Reset(tasks []Task) {
	b.tasks = make([]Task, len(tasks))
	for i, t := range tasks {
		b.tasks[i] = t.Clone()
	}
}

// Upsert replaces the task with the same id in place, or appends it
// (task:created, task:updated). An echoed create therefore never
// duplicates a card.
func (b *Board) Upsert(t Task) {
	for i := range b.tasks {
		if b.tasks[i].ID == t.ID {
			b.tasks[i] = t.Clone()
			return
		}
	}
	b.tasks = append(b.tasks, t.Clone())
}

// Remove drops the task with the given id, if present (task:deleted).
func (b *Board) Remove(id string) {
	kept := b.tasks[:0]
	for _, t := range b.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	b.tasks = kept
}

// Stats summarizes a task list per column.
type Stats struct {
	TodoCount       int     `json:"todoCount"`
	InProgressCount int     `json:"inProgressCount"`
	DoneCount       int     `json:"doneCount"`
	TotalCount      int     `json:"totalCount"`
	CompletionRate  float64 `json:"completionRate"`
}

// ComputeStats counts tasks per status. CompletionRate is a percentage.
func ComputeStats(tasks []Task) Stats {
	var s Stats
	for _, t := range tasks {
		switch t.Status {
		case StatusTodo:
			s.TodoCount++
		case StatusInProgress:
			s.InProgressCount++
		case StatusDone:
			s.DoneCount++
		}
	}
	s.TotalCount = len(tasks)
	if s.TotalCount > 0 {
		s.CompletionRate = float64(s.DoneCount) / float64(s.TotalCount) * 100
	}
	return s
}

// FilterOptions narrows a task list. Empty fields and "all" match everything.
type FilterOptions struct {
	Status   Status
	Search   string
	Priority string
	Category string
}

// Filter returns the tasks matching opts, preserving order.
func Filter(tasks []Task, opts FilterOptions) []Task {
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		if !matchesLabel(opts.Priority, string(t.Priority)) || !matchesLabel(opts.Category, string(t.Category)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesLabel(want, got string) bool {
	return want == "" || want == "all" || want == got
}
