package offering

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storecart/internal/db"
	"storecart/internal/domain"
	"storecart/internal/logger"
)

const offeringColumns = `id::text, store_id::text, key, sku, name, COALESCE(description, ''), price::text, currency, sellable, attributes, created_at, updated_at`

type postgresRepo struct {
	db     db.DBTX
	logger *zap.Logger
}

func NewPostgres(conn db.DBTX, log *zap.Logger) Repository {
	return &postgresRepo{db: conn, logger: logger.OrNop(log).Named("offering_repo")}
}

func (r *postgresRepo) ListByStore(ctx context.Context, storeID string) ([]domain.Offering, error) {
	q := `SELECT ` + offeringColumns + `
FROM offerings
WHERE store_id = $1
ORDER BY created_at DESC, key ASC
`
	rows, err := r.db.Query(ctx, q, storeID)
	if err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	defer rows.Close()

	var result []domain.Offering
	for rows.Next() {
		o, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offerings rows: %w", err)
	}
	r.logger.Debug("listed offerings", zap.String("store_id", storeID), zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, storeID, id string) (*domain.Offering, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFound("offering", id)
	}
	q := `SELECT ` + offeringColumns + `
FROM offerings
WHERE store_id = $1 AND id = $2
`
	o, err := scanOffering(r.db.QueryRow(ctx, q, storeID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("offering", id)
		}
		r.logger.Error("get offering failed", zap.String("store_id", storeID), zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &o, nil
}

// Upsert inserts or updates by (store, key). A caller-supplied id must match
// the existing row for that key.
func (r *postgresRepo) Upsert(ctx context.Context, offering domain.Offering) (*domain.Offering, error) {
	const q = `
INSERT INTO offerings (id, store_id, key, sku, name, description, price, currency, sellable, attributes)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, NULLIF($6, ''), $7::numeric, $8, $9, COALESCE($10, '{}'::jsonb))
ON CONFLICT (store_id, key) DO UPDATE SET
    sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price = EXCLUDED.price,
    currency = EXCLUDED.currency,
    sellable = EXCLUDED.sellable,
    attributes = EXCLUDED.attributes,
    updated_at = now()
RETURNING id::text, created_at, updated_at
`
	res := offering
	err := r.db.QueryRow(ctx, q,
		offering.ID,
		offering.StoreID,
		offering.Key,
		offering.SKU,
		offering.Name,
		offering.Description,
		offering.Price.StringFixed(2),
		offering.Currency,
		offering.Sellable,
		offering.Attributes,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		r.logger.Error("upsert offering failed", zap.String("key", offering.Key), zap.String("store_id", offering.StoreID), zap.Error(err))
		return nil, fmt.Errorf("upsert offering %q: %w", offering.Key, err)
	}
	if offering.ID != "" && res.ID != offering.ID {
		return nil, fmt.Errorf("%w: offering key %q already has id %s, not %s", domain.ErrConflict, offering.Key, res.ID, offering.ID)
	}
	res.Price = offering.Price.Round(2)
	r.logger.Debug("upserted offering", zap.String("key", res.Key), zap.String("id", res.ID))
	return &res, nil
}

func scanOffering(row pgx.Row) (domain.Offering, error) {
	var (
		o     domain.Offering
		price string
	)
	if err := row.Scan(&o.ID, &o.StoreID, &o.Key, &o.SKU, &o.Name, &o.Description, &price, &o.Currency, &o.Sellable, &o.Attributes, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Offering{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Offering{}, fmt.Errorf("parse offering %s price %q: %w", o.ID, price, err)
	}
	o.Price = d
	return o, nil
}
