package interfaces

import (
	"context"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// UserRepository manages platform accounts.
type UserRepository interface {
	// GetUser returns one user, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*aglmodels.User, error)

	// GetByUsername returns one user by username, or ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*aglmodels.User, error)

	// Create inserts a user.
	Create(ctx context.Context, user aglmodels.User) (*aglmodels.User, error)

	// BumpTokenVersion increments the user's token version, revoking every
	// previously issued token.
	BumpTokenVersion(ctx context.Context, id string) error
}
