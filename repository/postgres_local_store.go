package repository

import (
	"context"
	"errors"
	"fmt"

	"coinflip/database"
	"coinflip/service"

	"github.com/jackc/pgx/v5"
)

var _ service.LocalStore = (*PostgresLocalStore)(nil)

// PostgresLocalStore persists local state in a shared postgres database so
// several client processes of the same player see one history
type PostgresLocalStore struct {
	db *database.DB
	q  queryable
}

// NewPostgresLocalStore creates a store over a postgres pool
func NewPostgresLocalStore(db *database.DB) *PostgresLocalStore {
	return &PostgresLocalStore{db: db, q: db.Pool}
}

func pgGet(ctx context.Context, q queryable, account, key string) (string, bool, error) {
	var value string
	err := q.QueryRow(ctx,
		`SELECT value FROM local_state WHERE account = $1 AND key = $2`,
		account, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s for account %s: %w", key, account, err)
	}
	return value, true, nil
}

func pgPut(ctx context.Context, q queryable, account, key, value string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO local_state (account, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, account, key, value)
	if err != nil {
		return fmt.Errorf("failed to put %s for account %s: %w", key, account, err)
	}
	return nil
}

// Get returns the value of key in the account namespace
func (s *PostgresLocalStore) Get(ctx context.Context, account, key string) (string, bool, error) {
	return pgGet(ctx, s.q, account, key)
}

// Put upserts key in the account namespace
func (s *PostgresLocalStore) Put(ctx context.Context, account, key, value string) error {
	return pgPut(ctx, s.q, account, key, value)
}

// Delete removes key from the account namespace
func (s *PostgresLocalStore) Delete(ctx context.Context, account, key string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM local_state WHERE account = $1 AND key = $2`,
		account, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s for account %s: %w", key, account, err)
	}
	return nil
}

// Update runs a read-modify-write under a transaction-scoped advisory lock
// on (account, key). The lock also covers keys that do not exist yet.
func (s *PostgresLocalStore) Update(ctx context.Context, account, key string, fn updateFunc) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, account, key); err != nil {
			return fmt.Errorf("failed to lock %s for account %s: %w", key, account, err)
		}

		current, ok, err := pgGet(ctx, tx, account, key)
		if err != nil {
			return err
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		return pgPut(ctx, tx, account, key, next)
	})
}
