package offering

import (
	"context"

	"storecart/internal/domain"
)

type Repository interface {
	ListByStore(ctx context.Context, storeID string) ([]domain.Offering, error)
	GetByID(ctx context.Context, storeID, id string) (*domain.Offering, error)
	Upsert(ctx context.Context, offering domain.Offering) (*domain.Offering, error)
}
