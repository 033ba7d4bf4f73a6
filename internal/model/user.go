package model

import "strings"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleModerator:
		return true
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

type User struct {
	ID        int64     `json:"id" db:"id,pk,autoinc"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt Timestamp `json:"created_at" db:"created_at,readonly"`
}

func (u User) RecordID() int64 { return u.ID }

func (u User) Validate() error {
	if u.ID <= 0 {
		return invalid("user id must be positive, got %d", u.ID)
	}
	if !u.Role.Valid() {
		return invalid("user %d: unknown role %q", u.ID, u.Role)
	}
	if !u.Status.Valid() {
		return invalid("user %d: unknown status %q", u.ID, u.Status)
	}
	return nil
}

// UserInsert is the create payload; the server assigns id and created_at.
type UserInsert struct {
	Name   string `json:"name" db:"name" faker:"name"`
	Email  string `json:"email" db:"email" faker:"email"`
	Role   Role   `json:"role" db:"role" faker:"oneof: admin, user, moderator"`
	Status Status `json:"status" db:"status" faker:"oneof: active, inactive"`
}

func (u UserInsert) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return invalid("email is required")
	}
	if !u.Role.Valid() {
		return invalid("unknown role %q", u.Role)
	}
	if !u.Status.Valid() {
		return invalid("unknown status %q", u.Status)
	}
	return nil
}

// UserPatch is a partial update; nil fields are left untouched.
type UserPatch struct {
	Name   *string `json:"name,omitempty" db:"name"`
	Email  *string `json:"email,omitempty" db:"email"`
	Role   *Role   `json:"role,omitempty" db:"role"`
	Status *Status `json:"status,omitempty" db:"status"`
}

func (p UserPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("name cannot be empty")
	}
	if p.Email != nil && strings.TrimSpace(*p.Email) == "" {
		return invalid("email cannot be empty")
	}
	if p.Role != nil && !p.Role.Valid() {
		return invalid("unknown role %q", *p.Role)
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("unknown status %q", *p.Status)
	}
	return nil
}
