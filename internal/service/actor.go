package service

import "wifiportal/internal/models"

// Actor is the caller an operation runs on behalf of. A nil UserID is a guest.
type Actor struct {
	UserID *string
	Role   models.UserRole
}

func Guest() Actor {
	return Actor{Role: models.UserRoleUser}
}

func UserActor(id string, role models.UserRole) Actor {
	return Actor{UserID: &id, Role: role}
}

func (a Actor) IsAdmin() bool {
	return a.UserID != nil && a.Role == models.UserRoleAdmin
}

func (a Actor) IsGuest() bool {
	return a.UserID == nil
}
