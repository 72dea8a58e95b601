package model

import "time"

// User represents an identity record as stored in the `users` table.
// End users are keyed by phone number; admins additionally carry a login
// and a bcrypt hash. Login and HashedPassword are either both set or both nil.
type User struct {
	ID             uint64    `json:"id"`                 // users.id
	PhoneNumber    string    `json:"phone_number"`       // users.phone_number (unique)
	Login          *string   `json:"login,omitempty"`    // users.login (unique, nullable)
	Fullname       *string   `json:"fullname,omitempty"` // users.fullname
	HashedPassword *string   `json:"-"`                  // users.hashed_password
	IsActive       bool      `json:"is_active"`          // users.is_active
	IsAdmin        bool      `json:"is_admin"`           // users.is_admin
	IsBlocked      bool      `json:"is_blocked"`         // users.is_blocked
	CreatedAt      time.Time `json:"created_at"`         // users.created_at
	UpdatedAt      time.Time `json:"updated_at"`         // users.updated_at
}

// CanAct reports whether the user passes the active-user guard.
func (u User) CanAct() bool { return u.IsActive && !u.IsBlocked }

// VerificationCode models the single pending SMS code for a phone number.
type VerificationCode struct {
	PhoneNumber string    // verification_codes.phone_number (unique)
	Code        string    // verification_codes.code
	ExpiresAt   time.Time // verification_codes.expires_at
}

// Expired reports whether the code can no longer be used at now.
func (v VerificationCode) Expired(now time.Time) bool { return now.After(v.ExpiresAt) }

// BlacklistedToken is a revoked bearer token. Rows are never mutated.
type BlacklistedToken struct {
	Token         string
	UserID        *uint64
	BlacklistedAt time.Time
}
