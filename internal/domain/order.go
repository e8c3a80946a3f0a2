package domain

import (
	"context"
	"fmt"
	"time"
)

// Unit is the unit of measure of an order line
type Unit string

const (
	UnitDK     Unit = "dk"     // double chests
	UnitKisten Unit = "kisten" // chests
)

// Valid reports whether u is one of the two known units
func (u Unit) Valid() bool {
	return u == UnitDK || u == UnitKisten
}

// OrderStatus is the stored status of an order
type OrderStatus string

const (
	OrderOpen       OrderStatus = "open"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
)

// Valid reports whether s is a stored order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderInProgress, OrderCompleted:
		return true
	}
	return false
}

// DisplayOverdue is derived for presentation and never stored
const DisplayOverdue = "overdue"

// OrderItem is one line of an order
type OrderItem struct {
	BlockID string
	Amount  int
	Unit    Unit
}

// Order is a unit of assignable work
type Order struct {
	ID         string
	Items      []OrderItem
	StartDate  time.Time
	Deadline   time.Time
	Status     OrderStatus
	AutoAssign bool
	CreatedBy  string
	CreatedAt  time.Time
	Notes      string
	Progress   []*Progress
}

// Validate checks the creation invariants of an order
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order needs at least one item", ErrBadArguments)
	}
	seen := make(map[string]struct{}, len(o.Items))
	for i, item := range o.Items {
		if item.BlockID == "" {
			return fmt.Errorf("%w: item %d has no block id", ErrBadArguments, i+1)
		}
		if _, dup := seen[item.BlockID]; dup {
			return fmt.Errorf("%w: block %q listed twice", ErrBadArguments, item.BlockID)
		}
		seen[item.BlockID] = struct{}{}
		if item.Amount <= 0 {
			return fmt.Errorf("%w: amount for %q must be positive", ErrBadArguments, item.BlockID)
		}
		if !item.Unit.Valid() {
			return fmt.Errorf("%w: unknown unit %q", ErrBadArguments, item.Unit)
		}
	}
	if o.StartDate.IsZero() || o.Deadline.IsZero() {
		return fmt.Errorf("%w: start date and deadline are required", ErrBadArguments)
	}
	if o.Deadline.Before(o.StartDate) {
		return fmt.Errorf("%w: deadline is before start date", ErrBadArguments)
	}
	return nil
}

// TotalOrdered is the completion denominator shared by every progress record of the order
func (o *Order) TotalOrdered() int {
	total := 0
	for _, item := range o.Items {
		total += item.Amount
	}
	return total
}

// Item returns the line for blockID
func (o *Order) Item(blockID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.BlockID == blockID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// ProgressFor returns the progress record of userID, if any
func (o *Order) ProgressFor(userID string) *Progress {
	for _, p := range o.Progress {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// IsOverdue reports whether the deadline has passed on an unfinished order
func (o *Order) IsOverdue(now time.Time) bool {
	return o.Status != OrderCompleted && o.Deadline.Before(Day(now))
}

// DisplayStatus returns the stored status, or "overdue" for late unfinished orders
func (o *Order) DisplayStatus(now time.Time) string {
	if o.IsOverdue(now) {
		return DisplayOverdue
	}
	return string(o.Status)
}

// AllConfirmed reports whether the order has progress and every record is confirmed
func (o *Order) AllConfirmed() bool {
	if len(o.Progress) == 0 {
		return false
	}
	for _, p := range o.Progress {
		if p.Status != ProgressConfirmed {
			return false
		}
	}
	return true
}

// OrderRepository defines data access for orders, their items and progress.
// Orders are always returned with items and progress records attached.
type OrderRepository interface {
	// Create persists the order with its items and any initial progress as one unit
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// List returns all orders, newest first
	List(ctx context.Context) ([]*Order, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	// AddProgress inserts p unless the (order, user) pair already has a record,
	// in which case the existing record is returned with created=false
	AddProgress(ctx context.Context, p *Progress) (*Progress, bool, error)
	// SaveProgress stores status, timestamps and completed entries of p
	SaveProgress(ctx context.Context, p *Progress) error
}
