package domain

import (
	"context"
	"strings"
	"time"
)

// Role is the access level of a user
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleFarmer Role = "farmer"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFarmer, RoleViewer:
		return true
	}
	return false
}

// UnknownUserLabel is shown in place of a username whose account no longer exists
const UnknownUserLabel = "Unknown"

// User represents a member account
type User struct {
	ID           string // UUID
	Username     string // Unique, compared case-insensitively
	Email        string // Synthetic login identifier, <username>@<login domain>
	PasswordHash string // Bcrypt hash (never returned by the API)
	Role         Role
	CreatedAt    time.Time
	CreatedBy    string // Creator user ID, empty for the seed admin and self-registration
}

// Actor is the authenticated identity performing an operation
type Actor struct {
	UserID   string
	Username string
	Role     Role
}

// IsAdmin reports whether the actor has the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// NormalizeUsername trims and lowercases a username for comparisons
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	// List returns all users, oldest first
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int, error)
}
