package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/security"
)

// Dashboard is the overview shown after login
type Dashboard struct {
	TotalOrders          int     `json:"totalOrders"`
	OpenOrders           int     `json:"openOrders"`
	InProgressOrders     int     `json:"inProgressOrders"`
	CompletedOrders      int     `json:"completedOrders"`
	OverdueOrders        int     `json:"overdueOrders"`
	Farmers              int     `json:"farmers"`
	PendingAbsences      int     `json:"pendingAbsences"`
	PendingConfirmations int     `json:"pendingConfirmations"`
	Mine                 MyStats `json:"mine"`
}

// MyStats counts the actor's own progress records
type MyStats struct {
	Active    int `json:"active"`
	Submitted int `json:"submitted"`
	Confirmed int `json:"confirmed"`
}

// DashboardService aggregates counts across orders, users and absences
type DashboardService struct {
	orders   domain.OrderRepository
	users    domain.UserRepository
	absences domain.AbsenceRepository
	deps     Deps
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(orders domain.OrderRepository, users domain.UserRepository, absences domain.AbsenceRepository, deps Deps) *DashboardService {
	return &DashboardService{orders: orders, users: users, absences: absences, deps: deps.withDefaults()}
}

// Summary computes the dashboard for actor. Absence counts cover every
// request for admins and only the actor's own otherwise.
func (s *DashboardService) Summary(ctx context.Context, actor domain.Actor) (*Dashboard, error) {
	if err := s.deps.Authz.Authorize(actor, security.PermViewDashboard); err != nil {
		return nil, err
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var absences []*domain.Absence
	if s.deps.Authz.HasPermission(actor.Role, security.PermViewAllAbsences) {
		absences, err = s.absences.List(ctx)
	} else {
		absences, err = s.absences.ListByUser(ctx, actor.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}

	now := s.deps.Now()
	d := &Dashboard{TotalOrders: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case domain.OrderOpen:
			d.OpenOrders++
		case domain.OrderInProgress:
			d.InProgressOrders++
		case domain.OrderCompleted:
			d.CompletedOrders++
		}
		if o.IsOverdue(now) {
			d.OverdueOrders++
		}
		for _, p := range o.Progress {
			if p.Status == domain.ProgressSubmitted {
				d.PendingConfirmations++
			}
			if p.UserID != actor.UserID {
				continue
			}
			switch p.Status {
			case domain.ProgressAccepted, domain.ProgressInProgress:
				d.Mine.Active++
			case domain.ProgressSubmitted:
				d.Mine.Submitted++
			case domain.ProgressConfirmed:
				d.Mine.Confirmed++
			}
		}
	}
	for _, u := range users {
		if u.Role == domain.RoleFarmer {
			d.Farmers++
		}
	}
	for _, a := range absences {
		if a.Status == domain.AbsencePending {
			d.PendingAbsences++
		}
	}
	return d, nil
}

// MemberProfile is one member's work grouped by progress status, plus their
// absence requests. User is nil once the account is deleted and Username
// then falls back to domain.UnknownUserLabel.
type MemberProfile struct {
	UserID    string
	Username  string
	User      *domain.User
	Active    []*domain.Order // accepted or in progress
	Submitted []*domain.Order
	Confirmed []*domain.Order
	Absences  []*domain.Absence
}

// Profile returns the profile of userID. Members may read their own profile,
// admins any profile.
func (s *DashboardService) Profile(ctx context.Context, actor domain.Actor, userID string) (*MemberProfile, error) {
	if userID != actor.UserID {
		if err := s.deps.Authz.Authorize(actor, security.PermManageUsers); err != nil {
			return nil, err
		}
	}

	p := &MemberProfile{UserID: userID, Username: domain.UnknownUserLabel}
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		p.User = user
		p.Username = user.Username
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load user: %w", err)
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for _, o := range orders {
		progress := o.ProgressFor(userID)
		if progress == nil {
			continue
		}
		switch progress.Status {
		case domain.ProgressAccepted, domain.ProgressInProgress:
			p.Active = append(p.Active, o)
		case domain.ProgressSubmitted:
			p.Submitted = append(p.Submitted, o)
		case domain.ProgressConfirmed:
			p.Confirmed = append(p.Confirmed, o)
		}
	}
	if p.Absences, err = s.absences.ListByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}

	if p.User == nil && len(p.Active)+len(p.Submitted)+len(p.Confirmed)+len(p.Absences) == 0 {
		return nil, fmt.Errorf("%w: no member %s", domain.ErrNotFound, userID)
	}
	return p, nil
}
