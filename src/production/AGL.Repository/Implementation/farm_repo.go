package implementation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

type PostgresFarmRepository struct {
	db *sql.DB
}

func NewPostgresFarmRepository(db *sql.DB) *PostgresFarmRepository {
	return &PostgresFarmRepository{db: db}
}

const farmColumns = `id, name, location, owner_id, created_at, updated_at`

func (r *PostgresFarmRepository) GetFarm(ctx context.Context, id string) (*aglmodels.Farm, error) {
	query := `SELECT ` + farmColumns + ` FROM farms WHERE id = $1`
	return scanFarm(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresFarmRepository) ListByOwner(ctx context.Context, ownerID string) ([]aglmodels.Farm, error) {
	query := `SELECT ` + farmColumns + ` FROM farms WHERE owner_id = $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var farms []aglmodels.Farm
	for rows.Next() {
		farm, err := scanFarm(rows)
		if err != nil {
			return nil, err
		}
		farms = append(farms, *farm)
	}
	return farms, rows.Err()
}

func (r *PostgresFarmRepository) CreateFarm(ctx context.Context, farm aglmodels.Farm) (*aglmodels.Farm, error) {
	if farm.ID == "" {
		farm.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	farm.CreatedAt = now
	farm.UpdatedAt = now

	query := `
		INSERT INTO farms (id, name, location, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		farm.ID, farm.Name, nullString(farm.Location), farm.OwnerID,
		farm.CreatedAt, farm.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &farm, nil
}

func scanFarm(row rowScanner) (*aglmodels.Farm, error) {
	var farm aglmodels.Farm
	var location sql.NullString

	err := row.Scan(&farm.ID, &farm.Name, &location, &farm.OwnerID, &farm.CreatedAt, &farm.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	farm.Location = fromNullString(location)
	return &farm, nil
}
