package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User is the credential record. Email is derived from the phone number.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile carries the portal-facing identity of a user.
type Profile struct {
	ID        string
	Phone     string
	Role      UserRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthSession is a refresh-token login, unrelated to network access sessions.
type AuthSession struct {
	ID               string
	UserID           string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastSeenAt       time.Time
	ExpiresAt        time.Time
}
