package storage

import (
	"context"
	"database/sql"
	"sort"

	"github.com/lib/pq"
)

// PostgresStore persists values in the storefront_kv table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value
		FROM storefront_kv
		WHERE session_id = $1 AND key = $2
	`, scope, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *PostgresStore) PutAll(ctx context.Context, scope string, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// stable write order keeps row locks ordered across concurrent writers
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO storefront_kv (session_id, key, value, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (session_id, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, scope, k, string(values[k]))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) Delete(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM storefront_kv
		WHERE session_id = $1 AND key = ANY($2)
	`, scope, pq.Array(keys))
	return err
}
