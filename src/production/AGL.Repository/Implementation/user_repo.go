package implementation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, role, token_version, created_at, updated_at`

func (r *PostgresUserRepository) GetUser(ctx context.Context, id string) (*aglmodels.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*aglmodels.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresUserRepository) Create(ctx context.Context, user aglmodels.User) (*aglmodels.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, username, email, password_hash, role, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role,
		user.TokenVersion, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) BumpTokenVersion(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET token_version = token_version + 1, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func scanUser(row rowScanner) (*aglmodels.User, error) {
	var user aglmodels.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.TokenVersion, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}
