package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/featureflags"
	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
)

// AuthService handles authentication operations
type AuthService struct {
	users    domain.UserRepository
	accounts *UserService
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	deps     Deps
}

// NewAuthService creates a new authentication service. accounts provisions
// self-registered and seeded users.
func NewAuthService(
	users domain.UserRepository,
	accounts *UserService,
	tokens *auth.TokenManager,
	tokenTTL time.Duration,
	deps Deps,
) *AuthService {
	if deps.Revocations == nil && accounts != nil {
		deps.Revocations = accounts.deps.Revocations
	}
	deps = deps.withDefaults()
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		users:    users,
		accounts: accounts,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		deps:     deps,
	}
}

// LoginResult represents login response
type LoginResult struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int          `json:"expires_in"` // seconds
	User      *domain.User `json:"-"`
}

// SignIn verifies credentials and issues a session token. Unknown users and
// wrong passwords are both reported as domain.ErrInvalidCredentials.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrBadArguments)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		s.deps.Logger.Info("login attempt for unknown user", slog.String("username", username))
		metrics.ObserveLogin(domain.ErrInvalidCredentials)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		s.deps.Logger.Info("login failed with wrong password", slog.String("username", user.Username))
		metrics.ObserveLogin(err)
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	metrics.ObserveLogin(nil)
	s.deps.Logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("login", user.Email),
	)
	return result, nil
}

func (s *AuthService) issue(user *domain.User) (*LoginResult, error) {
	token, _, err := s.tokens.GenerateToken(user, s.tokenTTL)
	if err != nil {
		s.deps.Logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}
	return &LoginResult{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokenTTL.Seconds()),
		User:      user,
	}, nil
}

// SignOut revokes the token until it would have expired anyway
func (s *AuthService) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return domain.ErrUnauthorized
	}
	expires := s.deps.Now().Add(s.tokenTTL)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := s.deps.Revocations.RevokeToken(ctx, claims.ID, expires); err != nil {
		s.deps.Logger.Error("failed to revoke token", slog.String("error", err.Error()))
		return err
	}
	s.deps.Logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// Revoked reports whether claims were signed out or belong to a deleted account
func (s *AuthService) Revoked(ctx context.Context, claims *auth.Claims) (bool, error) {
	return s.deps.Revocations.Revoked(ctx, claims)
}

// PurgeRevoked drops expired revocations
func (s *AuthService) PurgeRevoked() int {
	return s.deps.Revocations.Purge()
}

// CurrentIdentity returns the account behind actor; a deleted account is unauthorized
func (s *AuthService) CurrentIdentity(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword changes the actor's password
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Actor, oldPassword, newPassword string) error {
	user, err := s.CurrentIdentity(ctx, actor)
	if err != nil {
		return err
	}

	if err := auth.CheckPassword(user.PasswordHash, oldPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrForbidden)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.deps.Logger.Error("failed to update user password", slog.String("error", err.Error()))
		return fmt.Errorf("update password: %w", err)
	}

	s.deps.Audit.LogResult(ctx, actor, "change_password", "user", user.ID, nil)
	s.deps.Logger.Info("user changed password", slog.String("user_id", user.ID))
	return nil
}

// Register creates a viewer account for an anonymous caller and signs it in.
// Only available when the self-registration flag is on.
func (s *AuthService) Register(ctx context.Context, username, password string) (*LoginResult, error) {
	if !s.deps.Flags(featureflags.SelfRegistration) {
		return nil, fmt.Errorf("%w: self-registration is disabled", domain.ErrForbidden)
	}
	user, err := s.accounts.provision(ctx, NewUser{Username: username, Password: password, Role: domain.RoleViewer}, "")
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("user registered", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

// SeedAdmin creates the first administrator when the user store is empty.
// It reports whether an account was created.
func (s *AuthService) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("user store is empty and SEED_ADMIN_PASSWORD is not set")
	}
	user, err := s.accounts.provision(ctx, NewUser{Username: username, Password: password, Role: domain.RoleAdmin}, "")
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.deps.Logger.Info("seed administrator created", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return true, nil
}
