package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// PostgresOrderRepository implements domain.OrderRepository on farm_orders,
// order_items, user_order_progress and completed_items
type PostgresOrderRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresOrderRepository creates a new order repository
func NewPostgresOrderRepository(db *sqlx.DB, logger *slog.Logger) *PostgresOrderRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOrderRepository{db: db, logger: logger}
}

type orderRow struct {
	ID         string         `db:"id"`
	StartDate  time.Time      `db:"start_date"`
	Deadline   time.Time      `db:"deadline"`
	Status     string         `db:"status"`
	AutoAssign bool           `db:"auto_assign"`
	CreatedBy  sql.NullString `db:"created_by"`
	CreatedAt  time.Time      `db:"created_at"`
	Notes      string         `db:"notes"`
}

type itemRow struct {
	OrderID string `db:"order_id"`
	BlockID string `db:"block_id"`
	Amount  int    `db:"amount"`
	Unit    string `db:"unit"`
}

type progressRow struct {
	ID          string         `db:"id"`
	OrderID     string         `db:"order_id"`
	UserID      string         `db:"user_id"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	SubmittedAt sql.NullTime   `db:"submitted_at"`
	ConfirmedAt sql.NullTime   `db:"confirmed_at"`
	ConfirmedBy sql.NullString `db:"confirmed_by"`
}

type completedRow struct {
	ProgressID string `db:"progress_id"`
	BlockID    string `db:"block_id"`
	Amount     int    `db:"amount"`
}

func (r orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:         r.ID,
		StartDate:  domain.Day(r.StartDate),
		Deadline:   domain.Day(r.Deadline),
		Status:     domain.OrderStatus(r.Status),
		AutoAssign: r.AutoAssign,
		CreatedBy:  r.CreatedBy.String,
		CreatedAt:  r.CreatedAt,
		Notes:      r.Notes,
	}
}

func (r progressRow) toDomain() *domain.Progress {
	return &domain.Progress{
		ID:          r.ID,
		OrderID:     r.OrderID,
		UserID:      r.UserID,
		Status:      domain.ProgressStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		SubmittedAt: timePtr(r.SubmittedAt),
		ConfirmedAt: timePtr(r.ConfirmedAt),
		ConfirmedBy: r.ConfirmedBy.String,
	}
}

const selectOrder = `
	SELECT id, start_date, deadline, status, auto_assign, created_by, created_at, notes
	FROM farm_orders
`

// Create inserts the order, its items and initial progress in one transaction
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const qOrder = `
			INSERT INTO farm_orders (id, start_date, deadline, status, auto_assign, created_by, created_at, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, qOrder,
			order.ID, order.StartDate, order.Deadline, string(order.Status), order.AutoAssign,
			nullString(order.CreatedBy), order.CreatedAt, order.Notes,
		); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		const qItem = `
			INSERT INTO order_items (order_id, position, block_id, amount, unit)
			VALUES ($1, $2, $3, $4, $5)
		`
		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, qItem, order.ID, i, item.BlockID, item.Amount, string(item.Unit)); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		for _, p := range order.Progress {
			if err := insertProgress(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if isCheckViolation(err) {
			return domain.ErrBadArguments
		}
		r.logger.Error("failed to create order",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func insertProgress(ctx context.Context, tx *sqlx.Tx, p *domain.Progress) error {
	const q = `
		INSERT INTO user_order_progress (id, order_id, user_id, status, created_at, submitted_at, confirmed_at, confirmed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, q,
		p.ID, p.OrderID, p.UserID, string(p.Status), p.CreatedAt,
		nullTime(p.SubmittedAt), nullTime(p.ConfirmedAt), nullString(p.ConfirmedBy),
	); err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return upsertCompleted(ctx, tx, p)
}

func upsertCompleted(ctx context.Context, tx *sqlx.Tx, p *domain.Progress) error {
	const q = `
		INSERT INTO completed_items (progress_id, block_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (progress_id, block_id) DO UPDATE SET amount = EXCLUDED.amount
	`
	for _, c := range p.Completed {
		if _, err := tx.ExecContext(ctx, q, p.ID, c.BlockID, c.Amount); err != nil {
			return fmt.Errorf("upsert completed item: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an order with items and progress
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	if err := r.db.GetContext(ctx, &row, selectOrder+` WHERE id = $1`, id); err != nil {
		if isMissing(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	orders := []*domain.Order{row.toDomain()}
	if err := r.attach(ctx, orders); err != nil {
		return nil, err
	}
	return orders[0], nil
}

// List returns all orders, newest first
func (r *PostgresOrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, selectOrder+` ORDER BY created_at DESC`); err != nil {
		r.logger.Error("failed to list orders", slog.String("error", err.Error()))
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	if err := r.attach(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attach loads items, progress and completed entries for orders in three queries
func (r *PostgresOrderRepository) attach(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	var items []itemRow
	const qItems = `
		SELECT order_id, block_id, amount, unit
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`
	if err := r.db.SelectContext(ctx, &items, qItems, pq.Array(ids)); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	for _, it := range items {
		o := byID[it.OrderID]
		o.Items = append(o.Items, domain.OrderItem{BlockID: it.BlockID, Amount: it.Amount, Unit: domain.Unit(it.Unit)})
	}

	var progress []progressRow
	const qProgress = `
		SELECT id, order_id, user_id, status, created_at, submitted_at, confirmed_at, confirmed_by
		FROM user_order_progress
		WHERE order_id = ANY($1::uuid[])
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &progress, qProgress, pq.Array(ids)); err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if len(progress) == 0 {
		return nil
	}

	progressByID := make(map[string]*domain.Progress, len(progress))
	progressIDs := make([]string, 0, len(progress))
	for _, row := range progress {
		p := row.toDomain()
		progressByID[p.ID] = p
		progressIDs = append(progressIDs, p.ID)
		o := byID[p.OrderID]
		o.Progress = append(o.Progress, p)
	}

	var completed []completedRow
	const qCompleted = `
		SELECT progress_id, block_id, amount
		FROM completed_items
		WHERE progress_id = ANY($1::uuid[])
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &completed, qCompleted, pq.Array(progressIDs)); err != nil {
		return fmt.Errorf("load completed items: %w", err)
	}
	for _, c := range completed {
		p := progressByID[c.ProgressID]
		p.Completed = append(p.Completed, domain.CompletedItem{BlockID: c.BlockID, Amount: c.Amount})
	}
	return nil
}

// Delete removes the order; items, progress and completed entries cascade
func (r *PostgresOrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM farm_orders WHERE id = $1`, id)
	if isInvalidText(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus sets the stored order status
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE farm_orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrBadArguments
		}
		if isInvalidText(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update order status: %w", err)
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddProgress inserts p unless the (order, user) pair already has a record
func (r *PostgresOrderRepository) AddProgress(ctx context.Context, p *domain.Progress) (*domain.Progress, bool, error) {
	const q = `
		INSERT INTO user_order_progress (id, order_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, user_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, q, p.ID, p.OrderID, p.UserID, string(p.Status), p.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidText(err) {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, fmt.Errorf("insert progress: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 1 {
		return p, true, nil
	}

	order, err := r.GetByID(ctx, p.OrderID)
	if err != nil {
		return nil, false, err
	}
	existing := order.ProgressFor(p.UserID)
	if existing == nil {
		return nil, false, fmt.Errorf("progress for user %s vanished", p.UserID)
	}
	return existing, false, nil
}

// SaveProgress updates status, timestamps and upserts completed entries
func (r *PostgresOrderRepository) SaveProgress(ctx context.Context, p *domain.Progress) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const q = `
			UPDATE user_order_progress
			SET status = $2, submitted_at = $3, confirmed_at = $4, confirmed_by = $5
			WHERE id = $1
		`
		res, err := tx.ExecContext(ctx, q, p.ID, string(p.Status),
			nullTime(p.SubmittedAt), nullTime(p.ConfirmedAt), nullString(p.ConfirmedBy))
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		if aff, _ := res.RowsAffected(); aff == 0 {
			return domain.ErrNotFound
		}
		return upsertCompleted(ctx, tx, p)
	})
}
