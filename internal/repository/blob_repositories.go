package repository

import (
	"context"
	"sort"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// BlobUserRepository implements domain.UserRepository on the users blob
type BlobUserRepository struct {
	c collection[*blobUser]
}

func (r *BlobUserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.c.update(ctx, func(users []*blobUser) ([]*blobUser, error) {
		name := domain.NormalizeUsername(user.Username)
		for _, u := range users {
			if u.ID == user.ID || domain.NormalizeUsername(u.Username) == name {
				return nil, domain.ErrAlreadyExists
			}
		}
		return append(users, toBlobUser(user)), nil
	})
}

func (r *BlobUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	users, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return u.toDomain(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *BlobUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	users, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	name := domain.NormalizeUsername(username)
	for _, u := range users {
		if domain.NormalizeUsername(u.Username) == name {
			return u.toDomain(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *BlobUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.c.update(ctx, func(users []*blobUser) ([]*blobUser, error) {
		for _, u := range users {
			if u.ID == id {
				u.PasswordHash = passwordHash
				return users, nil
			}
		}
		return nil, domain.ErrNotFound
	})
}

func (r *BlobUserRepository) Delete(ctx context.Context, id string) error {
	return r.c.update(ctx, func(users []*blobUser) ([]*blobUser, error) {
		for i, u := range users {
			if u.ID == id {
				return append(users[:i], users[i+1:]...), nil
			}
		}
		return nil, domain.ErrNotFound
	})
}

func (r *BlobUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	users, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *BlobUserRepository) Count(ctx context.Context) (int, error) {
	users, err := r.c.read(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// BlobOrderRepository implements domain.OrderRepository on the orders blob;
// progress records are nested inside their order
type BlobOrderRepository struct {
	c collection[*blobOrder]
}

func (r *BlobOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.c.update(ctx, func(orders []*blobOrder) ([]*blobOrder, error) {
		for _, o := range orders {
			if o.ID == order.ID {
				return nil, domain.ErrAlreadyExists
			}
		}
		return append(orders, toBlobOrder(order)), nil
	})
}

func (r *BlobOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o.toDomain(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *BlobOrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	orders, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *BlobOrderRepository) Delete(ctx context.Context, id string) error {
	return r.c.update(ctx, func(orders []*blobOrder) ([]*blobOrder, error) {
		for i, o := range orders {
			if o.ID == id {
				return append(orders[:i], orders[i+1:]...), nil
			}
		}
		return nil, domain.ErrNotFound
	})
}

func (r *BlobOrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return r.c.update(ctx, func(orders []*blobOrder) ([]*blobOrder, error) {
		o := findBlobOrder(orders, id)
		if o == nil {
			return nil, domain.ErrNotFound
		}
		o.Status = string(status)
		return orders, nil
	})
}

func (r *BlobOrderRepository) AddProgress(ctx context.Context, p *domain.Progress) (*domain.Progress, bool, error) {
	var (
		result  *domain.Progress
		created bool
	)
	err := r.c.update(ctx, func(orders []*blobOrder) ([]*blobOrder, error) {
		o := findBlobOrder(orders, p.OrderID)
		if o == nil {
			return nil, domain.ErrNotFound
		}
		for _, existing := range o.Progress {
			if existing.UserID == p.UserID {
				result = existing.toDomain(o.ID)
				return orders, nil
			}
		}
		o.Progress = append(o.Progress, toBlobProgress(p))
		result, created = p, true
		return orders, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (r *BlobOrderRepository) SaveProgress(ctx context.Context, p *domain.Progress) error {
	return r.c.update(ctx, func(orders []*blobOrder) ([]*blobOrder, error) {
		o := findBlobOrder(orders, p.OrderID)
		if o == nil {
			return nil, domain.ErrNotFound
		}
		for i, existing := range o.Progress {
			if existing.ID == p.ID {
				o.Progress[i] = toBlobProgress(p)
				return orders, nil
			}
		}
		return nil, domain.ErrNotFound
	})
}

func findBlobOrder(orders []*blobOrder, id string) *blobOrder {
	for _, o := range orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// BlobAbsenceRepository implements domain.AbsenceRepository on the absences blob
type BlobAbsenceRepository struct {
	c collection[*blobAbsence]
}

func (r *BlobAbsenceRepository) Create(ctx context.Context, a *domain.Absence) error {
	return r.c.update(ctx, func(absences []*blobAbsence) ([]*blobAbsence, error) {
		for _, existing := range absences {
			if existing.ID == a.ID {
				return nil, domain.ErrAlreadyExists
			}
		}
		return append(absences, toBlobAbsence(a)), nil
	})
}

func (r *BlobAbsenceRepository) GetByID(ctx context.Context, id string) (*domain.Absence, error) {
	absences, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range absences {
		if a.ID == id {
			return a.toDomain(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *BlobAbsenceRepository) List(ctx context.Context) ([]*domain.Absence, error) {
	return r.list(ctx, func(*blobAbsence) bool { return true })
}

func (r *BlobAbsenceRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Absence, error) {
	return r.list(ctx, func(a *blobAbsence) bool { return a.UserID == userID })
}

func (r *BlobAbsenceRepository) list(ctx context.Context, keep func(*blobAbsence) bool) ([]*domain.Absence, error) {
	absences, err := r.c.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Absence, 0, len(absences))
	for _, a := range absences {
		if keep(a) {
			out = append(out, a.toDomain())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (r *BlobAbsenceRepository) UpdateDecision(ctx context.Context, a *domain.Absence) error {
	return r.c.update(ctx, func(absences []*blobAbsence) ([]*blobAbsence, error) {
		for _, existing := range absences {
			if existing.ID == a.ID {
				existing.Status = string(a.Status)
				existing.DecidedBy = a.DecidedBy
				existing.DecidedAt = a.DecidedAt
				return absences, nil
			}
		}
		return nil, domain.ErrNotFound
	})
}

var (
	_ domain.UserRepository    = (*BlobUserRepository)(nil)
	_ domain.OrderRepository   = (*BlobOrderRepository)(nil)
	_ domain.AbsenceRepository = (*BlobAbsenceRepository)(nil)
	_ domain.UserRepository    = (*PostgresUserRepository)(nil)
	_ domain.OrderRepository   = (*PostgresOrderRepository)(nil)
	_ domain.AbsenceRepository = (*PostgresAbsenceRepository)(nil)
)
