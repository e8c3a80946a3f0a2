package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
)

func TestCreateAndDeleteUser(t *testing.T) {
	repo := newMemUserRepo()
	pub := &recordingPublisher{}
	s := NewUserService(repo, nil, "darknova.app", Deps{Events: pub})
	ctx := context.Background()
	admin := domain.Actor{UserID: "admin-1", Username: "admin", Role: domain.RoleAdmin}
	farmer := domain.Actor{UserID: "farmer-1", Username: "steve", Role: domain.RoleFarmer}

	u, err := s.CreateUser(ctx, admin, NewUser{Username: " Steve ", Password: "Password123", Role: domain.RoleFarmer})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Username != "Steve" || u.Email != "steve@darknova.app" || u.CreatedBy != admin.UserID {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.PasswordHash == "" || u.PasswordHash == "Password123" {
		t.Fatalf("password must be hashed")
	}
	if label := s.Directory().Label(ctx, u.ID); label != "Steve" {
		t.Fatalf("expected label Steve, got %q", label)
	}

	tests := []struct {
		name  string
		actor domain.Actor
		in    NewUser
		want  error
	}{
		{"not admin", farmer, NewUser{Username: "alex", Password: "Password123", Role: domain.RoleViewer}, domain.ErrForbidden},
		{"duplicate", admin, NewUser{Username: "STEVE", Password: "Password123", Role: domain.RoleViewer}, domain.ErrAlreadyExists},
		{"bad role", admin, NewUser{Username: "alex", Password: "Password123", Role: "owner"}, domain.ErrBadArguments},
		{"short password", admin, NewUser{Username: "alex", Password: "123", Role: domain.RoleViewer}, domain.ErrBadArguments},
		{"bad username", admin, NewUser{Username: "al ex", Password: "Password123", Role: domain.RoleViewer}, domain.ErrBadArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateUser(ctx, tt.actor, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := s.DeleteUser(ctx, admin, admin.UserID); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("expected self delete to fail, got %v", err)
	}
	_, claims, err := auth.NewTokenManager("secret", "farmorders").GenerateToken(u, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := s.DeleteUser(ctx, admin, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if revoked, err := s.deps.Revocations.Revoked(ctx, claims); err != nil || !revoked {
		t.Fatalf("sessions of a deleted user should be revoked, got %v, %v", revoked, err)
	}
	if err := s.DeleteUser(ctx, admin, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if label := s.Directory().Label(ctx, u.ID); label != domain.UnknownUserLabel {
		t.Fatalf("expected fallback label after delete, got %q", label)
	}
	if pub.count() != 2 {
		t.Fatalf("expected create and delete events, got %d", pub.count())
	}
	if _, err := s.ListUsers(ctx, farmer); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected farmer list to be forbidden, got %v", err)
	}
}
