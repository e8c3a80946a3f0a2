package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// PostgresUserRepository implements domain.UserRepository on the profiles and credentials tables
type PostgresUserRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sqlx.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

type userRow struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	Role         string         `db:"role"`
	CreatedAt    time.Time      `db:"created_at"`
	CreatedBy    sql.NullString `db:"created_by"`
	Email        sql.NullString `db:"email"`
	PasswordHash sql.NullString `db:"password_hash"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email.String,
		PasswordHash: r.PasswordHash.String,
		Role:         domain.Role(r.Role),
		CreatedAt:    r.CreatedAt,
		CreatedBy:    r.CreatedBy.String,
	}
}

const selectUser = `
	SELECT p.id, p.username, p.role, p.created_at, p.created_by, c.email, c.password_hash
	FROM profiles p
	LEFT JOIN credentials c ON c.user_id = p.id
`

// Create inserts the profile and its credentials together
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const qProfile = `
			INSERT INTO profiles (id, username, role, created_at, created_by)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.ExecContext(ctx, qProfile,
			user.ID, user.Username, string(user.Role), user.CreatedAt, nullString(user.CreatedBy),
		); err != nil {
			return err
		}

		const qCred = `INSERT INTO credentials (user_id, email, password_hash) VALUES ($1, $2, $3)`
		_, err := tx.ExecContext(ctx, qCred, user.ID, user.Email, user.PasswordHash)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if isCheckViolation(err) {
			return domain.ErrBadArguments
		}
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUser+` WHERE p.id = $1`, id); err != nil {
		if isMissing(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toDomain(), nil
}

// GetByUsername retrieves a user by username, ignoring case
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUser+` WHERE lower(p.username) = $1`, domain.NormalizeUsername(username)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return row.toDomain(), nil
}

// UpdatePassword replaces the stored password hash
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE credentials SET password_hash = $2 WHERE user_id = $1`

	res, err := r.db.ExecContext(ctx, q, id, passwordHash)
	if isInvalidText(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the profile; credentials cascade, progress and absences stay
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM profiles WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q, id)
	if isInvalidText(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all users, oldest first
func (r *PostgresUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, selectUser+` ORDER BY p.created_at ASC`); err != nil {
		r.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Count returns the number of users
func (r *PostgresUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM profiles`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
