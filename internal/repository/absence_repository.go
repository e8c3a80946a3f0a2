package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// PostgresAbsenceRepository implements domain.AbsenceRepository on absence_requests
type PostgresAbsenceRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresAbsenceRepository creates a new absence repository
func NewPostgresAbsenceRepository(db *sqlx.DB, logger *slog.Logger) *PostgresAbsenceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAbsenceRepository{db: db, logger: logger}
}

type absenceRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Username    string         `db:"username"`
	StartDate   time.Time      `db:"start_date"`
	EndDate     time.Time      `db:"end_date"`
	Reason      string         `db:"reason"`
	Status      string         `db:"status"`
	RequestedAt time.Time      `db:"requested_at"`
	DecidedBy   sql.NullString `db:"decided_by"`
	DecidedAt   sql.NullTime   `db:"decided_at"`
}

func (r absenceRow) toDomain() *domain.Absence {
	return &domain.Absence{
		ID:          r.ID,
		UserID:      r.UserID,
		Username:    r.Username,
		StartDate:   domain.Day(r.StartDate),
		EndDate:     domain.Day(r.EndDate),
		Reason:      r.Reason,
		Status:      domain.AbsenceStatus(r.Status),
		RequestedAt: r.RequestedAt,
		DecidedBy:   r.DecidedBy.String,
		DecidedAt:   timePtr(r.DecidedAt),
	}
}

const selectAbsence = `
	SELECT id, user_id, username, start_date, end_date, reason, status, requested_at, decided_by, decided_at
	FROM absence_requests
`

// Create inserts a new absence request
func (r *PostgresAbsenceRepository) Create(ctx context.Context, a *domain.Absence) error {
	const q = `
		INSERT INTO absence_requests (id, user_id, username, start_date, end_date, reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, q,
		a.ID, a.UserID, a.Username, a.StartDate, a.EndDate, a.Reason, string(a.Status), a.RequestedAt,
	); err != nil {
		if isCheckViolation(err) {
			return domain.ErrBadArguments
		}
		r.logger.Error("failed to create absence",
			slog.String("user_id", a.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("insert absence: %w", err)
	}
	return nil
}

// GetByID retrieves an absence request
func (r *PostgresAbsenceRepository) GetByID(ctx context.Context, id string) (*domain.Absence, error) {
	var row absenceRow
	if err := r.db.GetContext(ctx, &row, selectAbsence+` WHERE id = $1`, id); err != nil {
		if isMissing(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get absence: %w", err)
	}
	return row.toDomain(), nil
}

// List returns every request, newest first
func (r *PostgresAbsenceRepository) List(ctx context.Context) ([]*domain.Absence, error) {
	return r.list(ctx, selectAbsence+` ORDER BY requested_at DESC`)
}

// ListByUser returns the requests of one user, newest first
func (r *PostgresAbsenceRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Absence, error) {
	return r.list(ctx, selectAbsence+` WHERE user_id = $1 ORDER BY requested_at DESC`, userID)
}

func (r *PostgresAbsenceRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Absence, error) {
	var rows []absenceRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		if isInvalidText(err) {
			return []*domain.Absence{}, nil
		}
		return nil, fmt.Errorf("list absences: %w", err)
	}
	out := make([]*domain.Absence, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// UpdateDecision stores the decision of a request
func (r *PostgresAbsenceRepository) UpdateDecision(ctx context.Context, a *domain.Absence) error {
	const q = `
		UPDATE absence_requests
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, a.ID, string(a.Status), nullString(a.DecidedBy), nullTime(a.DecidedAt))
	if isInvalidText(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update absence: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return domain.ErrNotFound
	}
	return nil
}
