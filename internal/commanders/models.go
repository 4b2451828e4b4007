package commanders

import (
	"errors"
	"time"
)

// SharedCommander drops contact details from the change feed.
type SharedCommander struct {
	ID        string    `json:"id"`
	Rank      string    `json:"rank"`
	UnitID    string    `json:"unit_id"`
	State     string    `json:"state"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Commander) Shareable() any {
	return SharedCommander{
		ID:        c.ID,
		Rank:      c.Rank,
		UnitID:    c.UnitID,
		State:     c.State,
		Status:    c.Status,
		UpdatedAt: c.UpdatedAt,
	}
}

// Commander leads a field unit and receives report assignments.
type Commander struct {
	ID       string `json:"id" db:"id"`
	FullName string `json:"full_name" db:"full_name"`
	Email    string `json:"email" db:"email"`
	Phone    string `json:"phone" db:"phone"`
	Rank     string `json:"rank" db:"rank"`
	UnitID   string `json:"unit_id" db:"unit_id"`
	State    string `json:"state" db:"state"`
	Status   Status `json:"status" db:"status"`

	// PasswordHash is bcrypt; empty until password setup completes.
	PasswordHash string `json:"-" db:"password_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusInvited  Status = "invited"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Assignable reports whether the commander may receive new assignments.
func (c Commander) Assignable() bool { return c.Status == StatusInvited || c.Status == StatusActive }

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,min=7"`
	Rank     string `json:"rank" validate:"required"`
	UnitID   string `json:"unit_id" validate:"required"`
	State    string `json:"state" validate:"required"`
}

var (
	ErrNotFound           = errors.New("commanders: not found")
	ErrEmailTaken         = errors.New("commanders: email already registered")
	ErrInvalidRequest     = errors.New("commanders: invalid request")
	ErrTokenInvalid       = errors.New("commanders: setup token invalid or expired")
	ErrWeakPassword       = errors.New("commanders: password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("commanders: invalid credentials")
)
