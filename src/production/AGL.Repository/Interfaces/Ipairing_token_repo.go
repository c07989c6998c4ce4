package interfaces

import (
	"context"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// PairingTokenRepository stores single-use pairing credentials.
type PairingTokenRepository interface {
	// CreateToken inserts a new token row. Existing tokens for the same
	// serial are left untouched.
	CreateToken(ctx context.Context, token aglmodels.PairingToken) (*aglmodels.PairingToken, error)

	// GetLatestBySerial returns the most recently minted token for a
	// serial, used or not, or ErrNotFound.
	GetLatestBySerial(ctx context.Context, serial string) (*aglmodels.PairingToken, error)

	// MarkUsed flips the used flag on a token.
	MarkUsed(ctx context.Context, id string) error
}
