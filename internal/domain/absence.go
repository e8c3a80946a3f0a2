package domain

import (
	"context"
	"fmt"
	"time"
)

// AbsenceStatus is the decision state of an absence request
type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

// Absence is a member's notice of unavailability for a date range
type Absence struct {
	ID          string
	UserID      string
	Username    string // Denormalized at request time
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
	Status      AbsenceStatus
	RequestedAt time.Time
	DecidedBy   string
	DecidedAt   *time.Time
}

// Validate checks the creation invariants of an absence request
func (a *Absence) Validate() error {
	if a.StartDate.IsZero() || a.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end date are required", ErrBadArguments)
	}
	if a.EndDate.Before(a.StartDate) {
		return fmt.Errorf("%w: end date is before start date", ErrBadArguments)
	}
	return nil
}

// Decide moves a pending request to a terminal status
func (a *Absence) Decide(status AbsenceStatus, decidedBy string, at time.Time) error {
	if status != AbsenceApproved && status != AbsenceRejected {
		return fmt.Errorf("%w: %q is not a decision", ErrBadArguments, status)
	}
	if a.Status != AbsencePending {
		return fmt.Errorf("%w: absence is already %s", ErrInvalidTransition, a.Status)
	}
	a.Status = status
	a.DecidedBy = decidedBy
	a.DecidedAt = &at
	return nil
}

// AbsenceRepository defines data access for absence requests.
// List methods return newest requests first.
type AbsenceRepository interface {
	Create(ctx context.Context, absence *Absence) error
	GetByID(ctx context.Context, id string) (*Absence, error)
	List(ctx context.Context) ([]*Absence, error)
	ListByUser(ctx context.Context, userID string) ([]*Absence, error)
	// UpdateDecision stores status, DecidedBy and DecidedAt
	UpdateDecision(ctx context.Context, absence *Absence) error
}
