package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storecart/internal/db"
	"storecart/internal/domain"
)

type postgresRepo struct {
	db db.DBTX
}

func NewPostgres(conn db.DBTX) Repository {
	return &postgresRepo{db: conn}
}

func (r *postgresRepo) GetByKey(ctx context.Context, key string) (*domain.Store, error) {
	const q = `
SELECT id::text, key, name, currency, created_at
FROM stores
WHERE key = $1
`
	var s domain.Store
	err := r.db.QueryRow(ctx, q, key).Scan(&s.ID, &s.Key, &s.Name, &s.Currency, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("store", key)
		}
		return nil, fmt.Errorf("get store %q: %w", key, err)
	}
	return &s, nil
}

// Upsert creates the store or updates name and currency of an existing key.
func (r *postgresRepo) Upsert(ctx context.Context, store domain.Store) (*domain.Store, error) {
	const q = `
INSERT INTO stores (key, name, currency)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET
	name = EXCLUDED.name,
	currency = EXCLUDED.currency
RETURNING id::text, created_at
`
	out := store
	if err := r.db.QueryRow(ctx, q, store.Key, store.Name, store.Currency).Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert store %q: %w", store.Key, err)
	}
	return &out, nil
}
