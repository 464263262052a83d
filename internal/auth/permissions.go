package auth

import "errors"

// Роли приходят в токене identity provider
const (
	RoleCandidate = "candidate"
	RoleEmployer  = "employer"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

const (
	PermissionMessagingUse          = "messaging:use"
	PermissionNotificationsRead     = "notifications:read"
	PermissionNotificationsDispatch = "notifications:dispatch"
)

// Permissions список разрешений
var Permissions = map[string][]string{
	RoleAdmin: {
		PermissionMessagingUse,
		PermissionNotificationsRead,
		PermissionNotificationsDispatch,
	},
	// внутренние продюсеры событий
	RoleSystem: {
		PermissionNotificationsDispatch,
	},
	RoleEmployer: {
		PermissionMessagingUse,
		PermissionNotificationsRead,
	},
	RoleCandidate: {
		PermissionMessagingUse,
		PermissionNotificationsRead,
	},
}

// HasPermission проверяет есть ли у роли указанное разрешение
func HasPermission(role, permission string) bool {
	permissions, exists := Permissions[role]
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

// CanPerformAction проверяет может ли пользователь выполнить действие
func CanPerformAction(claims *Claims, permission string) bool {
	return claims != nil && HasPermission(claims.Role, permission)
}

func ValidateRole(role string) error {
	switch role {
	case RoleCandidate, RoleEmployer, RoleAdmin, RoleSystem:
		return nil
	default:
		return errors.New("invalid role")
	}
}
