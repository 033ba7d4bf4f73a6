package model

import "strings"

type Todo struct {
	ID          int64     `json:"id" db:"id,pk,autoinc"`
	Title       string    `json:"title" db:"title"`
	IsCompleted bool      `json:"is_completed" db:"is_completed"`
	CreatedAt   Timestamp `json:"created_at" db:"created_at,readonly"`
}

func (t Todo) RecordID() int64 { return t.ID }

func (t Todo) Validate() error {
	if t.ID <= 0 {
		return invalid("todo id must be positive, got %d", t.ID)
	}
	return nil
}

type TodoInsert struct {
	Title       string `json:"title" db:"title" faker:"sentence"`
	IsCompleted bool   `json:"is_completed" db:"is_completed"`
}

func (t TodoInsert) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("title is required")
	}
	return nil
}

type TodoPatch struct {
	Title       *string `json:"title,omitempty" db:"title"`
	IsCompleted *bool   `json:"is_completed,omitempty" db:"is_completed"`
}

func (p TodoPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return invalid("title cannot be empty")
	}
	return nil
}
