package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/featureflags"
	"github.com/aryan0dhankhar/farmorders/internal/security"
	"github.com/aryan0dhankhar/farmorders/internal/security/audit"
	"github.com/aryan0dhankhar/farmorders/internal/security/revocation"
)

// Deps bundles the collaborators every service shares. Zero values are
// replaced with working defaults.
type Deps struct {
	Authz  *security.AuthorizationService
	Events events.Publisher
	Audit  *audit.Logger
	Flags  featureflags.Source
	Logger *slog.Logger
	Now    func() time.Time
	// Revocations must be shared by the auth and user services
	Revocations *revocation.List
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Authz == nil {
		d.Authz = security.NewAuthorizationService(d.Logger)
	}
	if d.Events == nil {
		d.Events = noopPublisher{}
	}
	if d.Audit == nil {
		d.Audit = audit.NewLogger(d.Logger)
	}
	if d.Flags == nil {
		d.Flags = featureflags.Env
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Revocations == nil {
		d.Revocations = revocation.NewList(revocation.NewMemoryStore(), "farmorders", 24*time.Hour, d.Logger)
	}
	return d
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, events.Topic, events.Action, string) {}
