// Package store holds the relay's canonical, ordered list of tasks.
//
// A Store has no locking. It is owned by a single goroutine (the relay hub's
// dispatch loop), and every read or write must happen on that goroutine.
package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

// NotFound is the index returned by FindIndex when no task matches.
const NotFound = -1

// Store is an in-memory ordered sequence of tasks.
type Store struct {
	tasks []task.Task
}

// New returns a store holding a copy of seed, in order.
func New(seed ...task.Task) *Store {
	s := &Store{tasks: make([]task.Task, 0, len(seed))}
	for _, t := range seed {
		s.Insert(t)
	}
	return s
}

// Insert appends t to the end of the sequence. Ids are trusted, not checked.
func (s *Store) Insert(t task.Task) {
	s.tasks = append(s.tasks, t.Clone())
}

// FindIndex returns the position of the task with the given id, or NotFound.
func (s *Store) FindIndex(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return NotFound
}

// Find returns a copy of the task with the given id.
func (s *Store) Find(id string) (task.Task, bool) {
	i := s.FindIndex(id)
	if i == NotFound {
		return task.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

// At returns a copy of the task at index i.
func (s *Store) At(i int) (task.Task, error) {
	if i < 0 || i >= len(s.tasks) {
		return task.Task{}, fmt.Errorf("index %d out of range [0,%d): %w", i, len(s.tasks), perrors.ErrNotFound)
	}
	return s.tasks[i].Clone(), nil
}

// ReplaceAt overwrites the task at index i, keeping its position.
func (s *Store) ReplaceAt(i int, t task.Task) error {
	if i < 0 || i >= len(s.tasks) {
		return fmt.Errorf("index %d out of range [0,%d): %w", i, len(s.tasks), perrors.ErrNotFound)
	}
	s.tasks[i] = t.Clone()
	return nil
}

// RemoveAt deletes the task at index i, shifting later tasks down by one.
func (s *Store) RemoveAt(i int) (task.Task, error) {
	if i < 0 || i >= len(s.tasks) {
		return task.Task{}, fmt.Errorf("index %d out of range [0,%d): %w", i, len(s.tasks), perrors.ErrNotFound)
	}
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return removed, nil
}

// All returns a copy of every task in insertion order. Never nil.
func (s *Store) All() []task.Task {
	out := make([]task.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of tasks.
func (s *Store) Len() int { return len(s.tasks) }

// DefaultSeed is the sample card a fresh relay starts with.
func DefaultSeed() []task.Task {
	return []task.Task{{
		ID:          "1",
		Title:       "Sample Task",
		Description: "This is a sample task",
		Status:      task.StatusTodo,
		Priority:    task.PriorityMedium,
		Category:    task.CategoryFeature,
		Attachments: []task.Attachment{},
	}}
}

type seedFile struct {
	Tasks []task.Task `yaml:"tasks"`
}

// LoadSeed reads seed tasks from a YAML file of the form
//
//	tasks:
//	  - id: "1"
//	    title: Sample Task
//
// Missing fields get the same defaults as a task:create. Every task needs a
// unique, non-empty id and enum values from the closed sets.
func LoadSeed(path string) ([]task.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Tasks))
	out := make([]task.Task, 0, len(f.Tasks))
	for i, t := range f.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("seed task %d: missing id: %w", i, perrors.ErrInvalidInput)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("seed task %d: duplicate id %q: %w", i, t.ID, perrors.ErrInvalidInput)
		}
		seen[t.ID] = struct{}{}

		t = withDefaults(t)
		if err := task.Validate(t); err != nil {
			return nil, fmt.Errorf("seed task %q: %v: %w", t.ID, err, perrors.ErrInvalidInput)
		}
		out = append(out, t)
	}
	return out, nil
}

func withDefaults(t task.Task) task.Task {
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.Category == "" {
		t.Category = task.CategoryFeature
	}
	if t.Attachments == nil {
		t.Attachments = []task.Attachment{}
	}
	return t
}
