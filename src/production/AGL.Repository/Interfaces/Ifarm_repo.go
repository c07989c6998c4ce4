package interfaces

import (
	"context"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// FarmRepository manages farm ownership, the slice the device core needs
// for pairing and ACL checks.
type FarmRepository interface {
	// GetFarm returns one farm, or ErrNotFound.
	GetFarm(ctx context.Context, id string) (*aglmodels.Farm, error)

	// ListByOwner returns the farms owned by a user.
	ListByOwner(ctx context.Context, ownerID string) ([]aglmodels.Farm, error)

	// CreateFarm inserts a farm.
	CreateFarm(ctx context.Context, farm aglmodels.Farm) (*aglmodels.Farm, error)
}
