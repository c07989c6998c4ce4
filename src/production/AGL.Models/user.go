package aglmodels

import "time"

// User is a platform account. TokenVersion is bumped to revoke every token
// issued before the bump; the gateway compares it against the version
// embedded in presented JWTs.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	TokenVersion int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
