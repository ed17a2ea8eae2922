package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-banking-client/internal/model"
)

type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRecordStore(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

func (s *PostgresRecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM client_records WHERE key = $1`, key).Scan(&value)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client record: %w", err)
	}
	return value, nil
}

func (s *PostgresRecordStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_records (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("put client record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM client_records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete client record: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to database.DB.
func (s *PostgresRecordStore) Close() error {
	return nil
}
