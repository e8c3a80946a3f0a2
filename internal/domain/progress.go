package domain

import (
	"math"
	"time"
)

// ProgressStatus is the lifecycle state of one member's work on an order
type ProgressStatus string

const (
	ProgressAccepted   ProgressStatus = "accepted"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressSubmitted  ProgressStatus = "submitted"
	ProgressConfirmed  ProgressStatus = "confirmed"
)

// Editable reports whether completed amounts may still change
func (s ProgressStatus) Editable() bool {
	return s == ProgressAccepted || s == ProgressInProgress
}

// CompletedItem is the cumulative amount a member has completed for one block
type CompletedItem struct {
	BlockID string
	Amount  int
}

// Progress tracks one member's completion of an order
type Progress struct {
	ID          string
	OrderID     string
	UserID      string
	Status      ProgressStatus
	Completed   []CompletedItem
	CreatedAt   time.Time
	SubmittedAt *time.Time
	ConfirmedAt *time.Time
	ConfirmedBy string
}

// SetCompleted upserts the entry for blockID, keeping one entry per block
func (p *Progress) SetCompleted(blockID string, amount int) {
	for i := range p.Completed {
		if p.Completed[i].BlockID == blockID {
			p.Completed[i].Amount = amount
			return
		}
	}
	p.Completed = append(p.Completed, CompletedItem{BlockID: blockID, Amount: amount})
}

// CompletedAmount returns the amount completed for blockID
func (p *Progress) CompletedAmount(blockID string) int {
	for _, c := range p.Completed {
		if c.BlockID == blockID {
			return c.Amount
		}
	}
	return 0
}

// TotalCompleted sums completed amounts
func (p *Progress) TotalCompleted() int {
	total := 0
	for _, c := range p.Completed {
		total += c.Amount
	}
	return total
}

// DeriveStatus recomputes the status after completed amounts change.
//
//	current      completed  result
//	accepted     0          accepted
//	accepted     >0         in_progress
//	in_progress  0          accepted
//	in_progress  >0         in_progress
//	submitted    any        submitted
//	confirmed    any        confirmed
//
// Reaching the ordered total does not submit; submission is an explicit action.
func DeriveStatus(current ProgressStatus, completed int) ProgressStatus {
	if !current.Editable() {
		return current
	}
	if completed > 0 {
		return ProgressInProgress
	}
	return ProgressAccepted
}

// CanSubmit reports whether completed covers the ordered total
func CanSubmit(ordered, completed int) bool {
	return ordered > 0 && completed >= ordered
}

// Percent returns completion as a rounded percentage capped at 100
func Percent(ordered, completed int) int {
	if ordered <= 0 || completed <= 0 {
		return 0
	}
	pct := int(math.Round(float64(completed) / float64(ordered) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}
