package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/observability/tracing"
	"github.com/aryan0dhankhar/farmorders/internal/security"
	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
)

// NewUser is the input of CreateUser
type NewUser struct {
	Username string
	Password string
	Role     domain.Role
}

// UserService manages member accounts
type UserService struct {
	users       domain.UserRepository
	directory   *Directory
	loginDomain string
	deps        Deps
}

// NewUserService creates a new user service
func NewUserService(users domain.UserRepository, directory *Directory, loginDomain string, deps Deps) *UserService {
	deps = deps.withDefaults()
	if directory == nil {
		directory = NewDirectory(users, deps.Logger)
	}
	return &UserService{users: users, directory: directory, loginDomain: loginDomain, deps: deps}
}

// CreateUser provisions an account with credentials; the caller's own session is untouched
func (s *UserService) CreateUser(ctx context.Context, actor domain.Actor, in NewUser) (*domain.User, error) {
	ctx, span := tracing.Start(ctx, "UserService.CreateUser")
	var err error
	defer func() { tracing.End(span, err) }()

	if err = s.deps.Authz.Authorize(actor, security.PermManageUsers); err != nil {
		return nil, err
	}
	var user *domain.User
	user, err = s.provision(ctx, in, actor.UserID)
	s.deps.Audit.LogResult(ctx, actor, "create", "user", idOf(user), err)
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
		slog.String("created_by", actor.UserID),
	)
	return user, nil
}

// provision validates input, hashes the password and stores the user
func (s *UserService) provision(ctx context.Context, in NewUser, createdBy string) (*domain.User, error) {
	if err := auth.ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrBadArguments, in.Role)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(in.Username),
		Email:        auth.LoginIdentifier(in.Username, s.loginDomain),
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    s.deps.Now().UTC(),
		CreatedBy:    createdBy,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user %q: %w", user.Username, err)
	}
	s.directory.Invalidate()
	s.deps.Events.Publish(ctx, events.TopicUsers, events.ActionCreated, user.ID)
	return user, nil
}

// DeleteUser removes an account. Progress and absence records of the user
// are kept and render with the fallback label.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Actor, id string) error {
	ctx, span := tracing.Start(ctx, "UserService.DeleteUser")
	var err error
	defer func() { tracing.End(span, err) }()

	if err = s.deps.Authz.Authorize(actor, security.PermManageUsers); err != nil {
		return err
	}
	if id == actor.UserID {
		err = fmt.Errorf("%w: you cannot delete your own account", domain.ErrBadArguments)
		return err
	}
	err = s.users.Delete(ctx, id)
	s.deps.Audit.LogResult(ctx, actor, "delete", "user", id, err)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if err = s.deps.Revocations.RevokeUser(ctx, id); err != nil {
		s.deps.Logger.Error("failed to revoke sessions of deleted user",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.directory.Invalidate()
	s.deps.Events.Publish(ctx, events.TopicUsers, events.ActionDeleted, id)
	s.deps.Logger.Info("user deleted", slog.String("user_id", id), slog.String("deleted_by", actor.UserID))
	return nil
}

// ListUsers returns all users, oldest first
func (s *UserService) ListUsers(ctx context.Context, actor domain.Actor) ([]*domain.User, error) {
	if err := s.deps.Authz.Authorize(actor, security.PermManageUsers); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// Directory returns the label resolver shared with the other services
func (s *UserService) Directory() *Directory {
	return s.directory
}

func idOf(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
