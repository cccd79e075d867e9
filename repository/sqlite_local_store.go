package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coinflip/database"
	"coinflip/service"
)

var _ service.LocalStore = (*SQLiteLocalStore)(nil)

// SQLiteLocalStore persists local state in the sqlite file of the client
type SQLiteLocalStore struct {
	db *sql.DB
}

// NewSQLiteLocalStore creates a store over an open sqlite handle. The
// local_state table must already be migrated.
func NewSQLiteLocalStore(db *sql.DB) *SQLiteLocalStore {
	return &SQLiteLocalStore{db: db}
}

// sqlQueryable is satisfied by *sql.DB and *sql.Tx
type sqlQueryable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func sqliteGet(ctx context.Context, q sqlQueryable, account, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx,
		`SELECT value FROM local_state WHERE account = ? AND key = ?`,
		account, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s for account %s: %w", key, account, err)
	}
	return value, true, nil
}

func sqlitePut(ctx context.Context, q sqlQueryable, account, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO local_state (account, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (account, key)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, account, key, value)
	if err != nil {
		return fmt.Errorf("failed to put %s for account %s: %w", key, account, err)
	}
	return nil
}

// Get returns the value of key in the account namespace
func (s *SQLiteLocalStore) Get(ctx context.Context, account, key string) (string, bool, error) {
	return sqliteGet(ctx, s.db, account, key)
}

// Put upserts key in the account namespace
func (s *SQLiteLocalStore) Put(ctx context.Context, account, key, value string) error {
	return sqlitePut(ctx, s.db, account, key, value)
}

// Delete removes key from the account namespace
func (s *SQLiteLocalStore) Delete(ctx context.Context, account, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM local_state WHERE account = ? AND key = ?`,
		account, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s for account %s: %w", key, account, err)
	}
	return nil
}

// Update runs a read-modify-write in one immediate transaction
func (s *SQLiteLocalStore) Update(ctx context.Context, account, key string, fn updateFunc) error {
	return database.WithSQLTransaction(ctx, s.db, func(tx *sql.Tx) error {
		current, ok, err := sqliteGet(ctx, tx, account, key)
		if err != nil {
			return err
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		return sqlitePut(ctx, tx, account, key, next)
	})
}
