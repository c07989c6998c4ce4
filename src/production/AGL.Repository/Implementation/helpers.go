package implementation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// translateErr maps driver sentinels to repository errors.
func translateErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return interfaces.ErrConflict
	}
	return err
}

// marshalParams encodes a params map for a jsonb column. A nil map is
// stored as an empty object so scans never see SQL NULL.
func marshalParams(params map[string]interface{}) ([]byte, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return b, nil
}

// requireRowAffected turns a zero-row UPDATE/DELETE into ErrNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// nullString converts an optional string to its SQL representation.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
