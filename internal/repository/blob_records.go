package repository

import (
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// JSON shapes of the blob collections

type blobUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	CreatedBy    string    `json:"createdBy,omitempty"`
}

type blobItem struct {
	BlockID string `json:"blockId"`
	Amount  int    `json:"amount"`
	Unit    string `json:"unit"`
}

type blobCompleted struct {
	BlockID string `json:"blockId"`
	Amount  int    `json:"amount"`
}

type blobProgress struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Status      string          `json:"status"`
	Completed   []blobCompleted `json:"completedItems"`
	CreatedAt   time.Time       `json:"createdAt"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmedAt,omitempty"`
	ConfirmedBy string          `json:"confirmedBy,omitempty"`
}

type blobOrder struct {
	ID         string          `json:"id"`
	Items      []blobItem      `json:"items"`
	StartDate  string          `json:"startDate"`
	Deadline   string          `json:"deadline"`
	Status     string          `json:"status"`
	AutoAssign bool            `json:"autoAssign"`
	CreatedBy  string          `json:"createdBy"`
	CreatedAt  time.Time       `json:"createdAt"`
	Notes      string          `json:"notes,omitempty"`
	Progress   []*blobProgress `json:"progress"`
}

type blobAbsence struct {
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

func toBlobUser(u *domain.User) *blobUser {
	return &blobUser{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		CreatedBy:    u.CreatedBy,
	}
}

func (b *blobUser) toDomain() *domain.User {
	return &domain.User{
		ID:           b.ID,
		Username:     b.Username,
		Email:        b.Email,
		PasswordHash: b.PasswordHash,
		Role:         domain.Role(b.Role),
		CreatedAt:    b.CreatedAt,
		CreatedBy:    b.CreatedBy,
	}
}

func toBlobProgress(p *domain.Progress) *blobProgress {
	out := &blobProgress{
		ID:          p.ID,
		UserID:      p.UserID,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		SubmittedAt: p.SubmittedAt,
		ConfirmedAt: p.ConfirmedAt,
		ConfirmedBy: p.ConfirmedBy,
	}
	for _, c := range p.Completed {
		out.Completed = append(out.Completed, blobCompleted{BlockID: c.BlockID, Amount: c.Amount})
	}
	return out
}

func (b *blobProgress) toDomain(orderID string) *domain.Progress {
	p := &domain.Progress{
		ID:          b.ID,
		OrderID:     orderID,
		UserID:      b.UserID,
		Status:      domain.ProgressStatus(b.Status),
		CreatedAt:   b.CreatedAt,
		SubmittedAt: b.SubmittedAt,
		ConfirmedAt: b.ConfirmedAt,
		ConfirmedBy: b.ConfirmedBy,
	}
	for _, c := range b.Completed {
		p.Completed = append(p.Completed, domain.CompletedItem{BlockID: c.BlockID, Amount: c.Amount})
	}
	return p
}

func toBlobOrder(o *domain.Order) *blobOrder {
	out := &blobOrder{
		ID:         o.ID,
		StartDate:  domain.FormatDate(o.StartDate),
		Deadline:   domain.FormatDate(o.Deadline),
		Status:     string(o.Status),
		AutoAssign: o.AutoAssign,
		CreatedBy:  o.CreatedBy,
		CreatedAt:  o.CreatedAt,
		Notes:      o.Notes,
		Progress:   []*blobProgress{},
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, blobItem{BlockID: item.BlockID, Amount: item.Amount, Unit: string(item.Unit)})
	}
	for _, p := range o.Progress {
		out.Progress = append(out.Progress, toBlobProgress(p))
	}
	return out
}

func (b *blobOrder) toDomain() *domain.Order {
	// Dates were written by FormatDate; a corrupt value degrades to the zero time.
	start, _ := domain.ParseDate(b.StartDate)
	deadline, _ := domain.ParseDate(b.Deadline)
	o := &domain.Order{
		ID:         b.ID,
		StartDate:  start,
		Deadline:   deadline,
		Status:     domain.OrderStatus(b.Status),
		AutoAssign: b.AutoAssign,
		CreatedBy:  b.CreatedBy,
		CreatedAt:  b.CreatedAt,
		Notes:      b.Notes,
	}
	for _, item := range b.Items {
		o.Items = append(o.Items, domain.OrderItem{BlockID: item.BlockID, Amount: item.Amount, Unit: domain.Unit(item.Unit)})
	}
	for _, p := range b.Progress {
		o.Progress = append(o.Progress, p.toDomain(b.ID))
	}
	return o
}

func toBlobAbsence(a *domain.Absence) *blobAbsence {
	return &blobAbsence{
		ID:          a.ID,
		UserID:      a.UserID,
		Username:    a.Username,
		StartDate:   domain.FormatDate(a.StartDate),
		EndDate:     domain.FormatDate(a.EndDate),
		Reason:      a.Reason,
		Status:      string(a.Status),
		RequestedAt: a.RequestedAt,
		DecidedBy:   a.DecidedBy,
		DecidedAt:   a.DecidedAt,
	}
}

func (b *blobAbsence) toDomain() *domain.Absence {
	start, _ := domain.ParseDate(b.StartDate)
	end, _ := domain.ParseDate(b.EndDate)
	return &domain.Absence{
		ID:          b.ID,
		UserID:      b.UserID,
		Username:    b.Username,
		StartDate:   start,
		EndDate:     end,
		Reason:      b.Reason,
		Status:      domain.AbsenceStatus(b.Status),
		RequestedAt: b.RequestedAt,
		DecidedBy:   b.DecidedBy,
		DecidedAt:   b.DecidedAt,
	}
}
