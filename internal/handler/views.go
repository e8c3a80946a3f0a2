package handler

import (
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/catalog"
	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/service"
)

// UserView is the public shape of a user; the password hash never leaves the server
type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

func newUserView(u *domain.User) UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		CreatedBy: u.CreatedBy,
	}
}

// ItemView is one order line
type ItemView struct {
	BlockID   string `json:"blockId"`
	BlockName string `json:"blockName"`
	Amount    int    `json:"amount"`
	Unit      string `json:"unit"`
}

// CompletedView is one completed entry of a progress record
type CompletedView struct {
	BlockID string `json:"blockId"`
	Amount  int    `json:"amount"`
}

// ProgressView is a member's progress with resolved names and percentage
type ProgressView struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Username        string          `json:"username"`
	Status          string          `json:"status"`
	Completed       []CompletedView `json:"completed"`
	TotalCompleted  int             `json:"totalCompleted"`
	Percent         int             `json:"percent"`
	CreatedAt       time.Time       `json:"createdAt"`
	SubmittedAt     *time.Time      `json:"submittedAt,omitempty"`
	ConfirmedAt     *time.Time      `json:"confirmedAt,omitempty"`
	ConfirmedBy     string          `json:"confirmedBy,omitempty"`
	ConfirmedByName string          `json:"confirmedByName,omitempty"`
}

// OrderView is an order as the clients render it
type OrderView struct {
	ID            string         `json:"id"`
	Items         []ItemView     `json:"items"`
	StartDate     string         `json:"startDate"`
	Deadline      string         `json:"deadline"`
	Status        string         `json:"status"`
	DisplayStatus string         `json:"displayStatus"`
	AutoAssign    bool           `json:"autoAssign"`
	TotalOrdered  int            `json:"totalOrdered"`
	CreatedBy     string         `json:"createdBy"`
	CreatedByName string         `json:"createdByName"`
	CreatedAt     time.Time      `json:"createdAt"`
	Notes         string         `json:"notes,omitempty"`
	Progress      []ProgressView `json:"progress"`
}

func newProgressView(p *domain.Progress, ordered int, labels map[string]string) ProgressView {
	v := ProgressView{
		ID:             p.ID,
		UserID:         p.UserID,
		Username:       service.LabelFrom(labels, p.UserID),
		Status:         string(p.Status),
		Completed:      make([]CompletedView, 0, len(p.Completed)),
		TotalCompleted: p.TotalCompleted(),
		Percent:        domain.Percent(ordered, p.TotalCompleted()),
		CreatedAt:      p.CreatedAt,
		SubmittedAt:    p.SubmittedAt,
		ConfirmedAt:    p.ConfirmedAt,
		ConfirmedBy:    p.ConfirmedBy,
	}
	if p.ConfirmedBy != "" {
		v.ConfirmedByName = service.LabelFrom(labels, p.ConfirmedBy)
	}
	for _, c := range p.Completed {
		v.Completed = append(v.Completed, CompletedView{BlockID: c.BlockID, Amount: c.Amount})
	}
	return v
}

func newOrderView(o *domain.Order, labels map[string]string, now time.Time) OrderView {
	ordered := o.TotalOrdered()
	v := OrderView{
		ID:            o.ID,
		Items:         make([]ItemView, 0, len(o.Items)),
		StartDate:     domain.FormatDate(o.StartDate),
		Deadline:      domain.FormatDate(o.Deadline),
		Status:        string(o.Status),
		DisplayStatus: o.DisplayStatus(now),
		AutoAssign:    o.AutoAssign,
		TotalOrdered:  ordered,
		CreatedBy:     o.CreatedBy,
		CreatedByName: service.LabelFrom(labels, o.CreatedBy),
		CreatedAt:     o.CreatedAt,
		Notes:         o.Notes,
		Progress:      make([]ProgressView, 0, len(o.Progress)),
	}
	for _, item := range o.Items {
		v.Items = append(v.Items, ItemView{
			BlockID:   item.BlockID,
			BlockName: catalog.Name(item.BlockID),
			Amount:    item.Amount,
			Unit:      string(item.Unit),
		})
	}
	for _, p := range o.Progress {
		v.Progress = append(v.Progress, newProgressView(p, ordered, labels))
	}
	return v
}

// AbsenceView is an absence request with the requester's current name
type AbsenceView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Username    string     `json:"username"`
	StartDate   string     `json:"startDate"`
	EndDate     string     `json:"endDate"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	DecidedBy   string     `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
}

// newAbsenceView prefers the live username, then the one stored with the request
func newAbsenceView(a *domain.Absence, labels map[string]string) AbsenceView {
	name, ok := labels[a.UserID]
	if !ok || name == "" {
		name = a.Username
	}
	if name == "" {
		name = domain.UnknownUserLabel
	}
	return AbsenceView{
		ID:          a.ID,
		UserID:      a.UserID,
		Username:    name,
		StartDate:   domain.FormatDate(a.StartDate),
		EndDate:     domain.FormatDate(a.EndDate),
		Reason:      a.Reason,
		Status:      string(a.Status),
		RequestedAt: a.RequestedAt,
		DecidedBy:   a.DecidedBy,
		DecidedAt:   a.DecidedAt,
	}
}
