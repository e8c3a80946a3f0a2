package domain

import (
	"errors"
	"testing"
	"time"
)

func validOrder() *Order {
	return &Order{
		Items:     []OrderItem{{BlockID: "wheat", Amount: 10, Unit: UnitDK}},
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Deadline:  time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:    OrderOpen,
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Order)
		ok     bool
	}{
		{"valid", func(o *Order) {}, true},
		{"no items", func(o *Order) { o.Items = nil }, false},
		{"empty block", func(o *Order) { o.Items[0].BlockID = "" }, false},
		{"zero amount", func(o *Order) { o.Items[0].Amount = 0 }, false},
		{"negative amount", func(o *Order) { o.Items[0].Amount = -3 }, false},
		{"bad unit", func(o *Order) { o.Items[0].Unit = "stacks" }, false},
		{"missing start", func(o *Order) { o.StartDate = time.Time{} }, false},
		{"missing deadline", func(o *Order) { o.Deadline = time.Time{} }, false},
		{"deadline before start", func(o *Order) { o.Deadline = o.StartDate.AddDate(0, 0, -1) }, false},
		{"same day", func(o *Order) { o.Deadline = o.StartDate }, true},
		{"duplicate block", func(o *Order) {
			o.Items = append(o.Items, OrderItem{BlockID: "wheat", Amount: 1, Unit: UnitKisten})
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(o)
			err := o.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrBadArguments) {
				t.Fatalf("expected ErrBadArguments, got %v", err)
			}
		})
	}
}

func TestTotalOrderedIsSharedDenominator(t *testing.T) {
	o := validOrder()
	o.Items = append(o.Items, OrderItem{BlockID: "carrots", Amount: 5, Unit: UnitKisten})
	o.Progress = []*Progress{
		{UserID: "a", Completed: []CompletedItem{{BlockID: "wheat", Amount: 3}}},
		{UserID: "b"},
	}
	if got := o.TotalOrdered(); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	if got := Percent(o.TotalOrdered(), o.Progress[0].TotalCompleted()); got != 20 {
		t.Fatalf("expected 20%%, got %d", got)
	}
}

func TestDisplayStatus(t *testing.T) {
	o := validOrder()
	before := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	onDeadline := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	after := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	if got := o.DisplayStatus(before); got != "open" {
		t.Fatalf("expected open, got %s", got)
	}
	if got := o.DisplayStatus(onDeadline); got != "open" {
		t.Fatalf("expected open on deadline day, got %s", got)
	}
	if got := o.DisplayStatus(after); got != DisplayOverdue {
		t.Fatalf("expected overdue, got %s", got)
	}
	o.Status = OrderCompleted
	if got := o.DisplayStatus(after); got != "completed" {
		t.Fatalf("expected completed orders never to be overdue, got %s", got)
	}
}

func TestAllConfirmed(t *testing.T) {
	o := validOrder()
	if o.AllConfirmed() {
		t.Fatalf("order without progress must not count as confirmed")
	}
	o.Progress = []*Progress{{Status: ProgressConfirmed}, {Status: ProgressSubmitted}}
	if o.AllConfirmed() {
		t.Fatalf("expected false with a submitted record")
	}
	o.Progress[1].Status = ProgressConfirmed
	if !o.AllConfirmed() {
		t.Fatalf("expected true")
	}
}
