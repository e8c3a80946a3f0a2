package security

import (
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// ResourceType identifies the kind of resource being accessed
type ResourceType string

const (
	ResourceOrder    ResourceType = "order"
	ResourceProgress ResourceType = "progress"
	ResourceAbsence  ResourceType = "absence"
	ResourceUser     ResourceType = "user"
)

// ResourcePermission describes access to one owned resource
type ResourcePermission struct {
	ResourceType ResourceType
	ResourceID   string
	OwnerID      string // User ID that owns the resource
}

// ValidateResourceAccess lets admins through and otherwise requires ownership
func (as *AuthorizationService) ValidateResourceAccess(actor domain.Actor, perm ResourcePermission) error {
	if actor.IsAdmin() {
		return nil
	}
	if perm.OwnerID != actor.UserID {
		as.logger.Warn("resource access denied",
			slog.String("user_id", actor.UserID),
			slog.String("resource_id", perm.ResourceID),
			slog.String("resource_type", string(perm.ResourceType)),
			slog.String("owner_id", perm.OwnerID),
		)
		return fmt.Errorf("%w: you do not own this %s", domain.ErrForbidden, perm.ResourceType)
	}
	return nil
}
