package implementation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

type PostgresPairingTokenRepository struct {
	db *sql.DB
}

func NewPostgresPairingTokenRepository(db *sql.DB) *PostgresPairingTokenRepository {
	return &PostgresPairingTokenRepository{db: db}
}

func (r *PostgresPairingTokenRepository) CreateToken(ctx context.Context, token aglmodels.PairingToken) (*aglmodels.PairingToken, error) {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pairing_tokens (id, serial, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.Serial, token.Token, token.ExpiresAt, token.Used, token.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *PostgresPairingTokenRepository) GetLatestBySerial(ctx context.Context, serial string) (*aglmodels.PairingToken, error) {
	query := `
		SELECT id, serial, token, expires_at, used, created_at
		FROM pairing_tokens
		WHERE serial = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var token aglmodels.PairingToken
	err := r.db.QueryRowContext(ctx, query, serial).Scan(
		&token.ID, &token.Serial, &token.Token, &token.ExpiresAt, &token.Used, &token.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &token, nil
}

func (r *PostgresPairingTokenRepository) MarkUsed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE pairing_tokens SET used = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}
