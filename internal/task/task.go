// Package task defines the kanban task record shared by the relay and its
// clients, together with the client-side helpers that operate on task lists.
package task

import (
	"strings"
)

// Status is the board column a task sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Priority is the urgency label of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Category classifies the kind of work a task tracks.
type Category string

const (
	CategoryBug         Category = "Bug"
	CategoryFeature     Category = "Feature"
	CategoryEnhancement Category = "Enhancement"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryBug, CategoryFeature, CategoryEnhancement:
		return true
	}
	return false
}

// Attachment is a named link attached to a task.
type Attachment struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Task is a single card on the board.
type Task struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description" yaml:"description"`
	Status      Status       `json:"status" yaml:"status"`
	Priority    Priority     `json:"priority" yaml:"priority"`
	Category    Category     `json:"category" yaml:"category"`
	Attachments []Attachment `json:"attachments" yaml:"attachments"`
}

// Clone returns a copy of t that shares no memory with it.
func (t Task) Clone() Task {
	out := t
	out.Attachments = make([]Attachment, len(t.Attachments))
	copy(out.Attachments, t.Attachments)
	return out
}

// Patch is a partial task. Nil fields are absent and leave the target
// untouched when merged.
type Patch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *Status       `json:"status,omitempty"`
	Priority    *Priority     `json:"priority,omitempty"`
	Category    *Category     `json:"category,omitempty"`
	Attachments *[]Attachment `json:"attachments,omitempty"`
}

// New builds a task with the given id from a partial record, filling in
// the defaults for every absent field.
func New(id string, p Patch) Task {
	t := Task{
		ID:          id,
		Status:      StatusTodo,
		Priority:    PriorityMedium,
		Category:    CategoryFeature,
		Attachments: []Attachment{},
	}
	return Merge(t, p)
}

// Merge returns t with every present field of p applied (shallow merge).
// Empty enum values count as absent.
func Merge(t Task, p Patch) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil && *p.Status != "" {
		out.Status = *p.Status
	}
	if p.Priority != nil && *p.Priority != "" {
		out.Priority = *p.Priority
	}
	if p.Category != nil && *p.Category != "" {
		out.Category = *p.Category
	}
	if p.Attachments != nil {
		out.Attachments = make([]Attachment, len(*p.Attachments))
		copy(out.Attachments, *p.Attachments)
	}
	return out
}

// CheckEnums returns the name of the first field of p whose value lies
// outside its closed set, or "" when all present enums are valid.
func (p Patch) CheckEnums() string {
	if p.Status != nil && *p.Status != "" && !p.Status.IsValid() {
		return "status"
	}
	if p.Priority != nil && *p.Priority != "" && !p.Priority.IsValid() {
		return "priority"
	}
	if p.Category != nil && *p.Category != "" && !p.Category.IsValid() {
		return "category"
	}
	return ""
}

// ValidationError describes why a task failed client-side validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate applies the form rules clients enforce before emitting a task.
func Validate(t Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Message: "Title is required"}
	}
	if !t.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "Invalid status"}
	}
	if !t.Priority.IsValid() {
		return &ValidationError{Field: "priority", Message: "Invalid priority"}
	}
	if !t.Category.IsValid() {
		return &ValidationError{Field: "category", Message: "Invalid category"}
	}
	return nil
}
