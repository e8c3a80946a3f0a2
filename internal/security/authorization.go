package security

import (
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermViewOrders      Permission = "view_orders"
	PermManageOrders    Permission = "manage_orders"
	PermWorkOrders      Permission = "work_orders"
	PermConfirmProgress Permission = "confirm_progress"
	PermRequestAbsence  Permission = "request_absence"
	PermDecideAbsence   Permission = "decide_absence"
	PermViewAllAbsences Permission = "view_all_absences"
	PermManageUsers     Permission = "manage_users"
	PermViewDashboard   Permission = "view_dashboard"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermViewOrders,
		PermManageOrders,
		PermWorkOrders,
		PermConfirmProgress,
		PermRequestAbsence,
		PermDecideAbsence,
		PermViewAllAbsences,
		PermManageUsers,
		PermViewDashboard,
	},
	domain.RoleFarmer: {
		PermViewOrders,
		PermWorkOrders,
		PermRequestAbsence,
		PermViewDashboard,
	},
	domain.RoleViewer: {
		PermViewOrders,
		PermRequestAbsence,
		PermViewDashboard,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Authorize returns domain.ErrForbidden unless the actor's role grants permission
func (as *AuthorizationService) Authorize(actor domain.Actor, permission Permission) error {
	if actor.UserID == "" {
		return domain.ErrUnauthorized
	}
	if !as.HasPermission(actor.Role, permission) {
		as.logger.Warn("permission denied",
			slog.String("user_id", actor.UserID),
			slog.String("role", string(actor.Role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", domain.ErrForbidden, actor.Role, permission)
	}
	return nil
}

// GetRolePermissions returns all permissions for a role
func (as *AuthorizationService) GetRolePermissions(role domain.Role) []Permission {
	return RolePermissions[role]
}
