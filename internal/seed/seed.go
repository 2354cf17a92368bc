// Package seed fills an empty database with demo stores and offerings.
package seed

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storecart/internal/domain"
	"storecart/internal/logger"
)

type StoreWriter interface {
	Upsert(ctx context.Context, store domain.Store) (*domain.Store, error)
}

type OfferingWriter interface {
	Upsert(ctx context.Context, offering domain.Offering) (*domain.Offering, error)
}

type Options struct {
	// PerStore is the number of offerings generated for each store.
	PerStore int
	// Seed makes generated catalog data reproducible across runs.
	Seed   uint64
	Logger *zap.Logger
}

var demoStores = []domain.Store{
	{Key: "berlin", Name: "Berlin", Currency: "EUR"},
	{Key: "london", Name: "London", Currency: "GBP"},
	{Key: "new-york", Name: "New York", Currency: "USD"},
}

// Apply upserts the demo stores and their offerings. Re-running with the same
// seed rewrites the same rows.
func Apply(ctx context.Context, stores StoreWriter, offerings OfferingWriter, opts Options) error {
	log := logger.OrNop(opts.Logger)
	if opts.PerStore <= 0 {
		opts.PerStore = 10
	}
	faker := gofakeit.New(opts.Seed)

	for _, s := range demoStores {
		store, err := stores.Upsert(ctx, s)
		if err != nil {
			return fmt.Errorf("upsert store %s: %w", s.Key, err)
		}
		for n := 1; n <= opts.PerStore; n++ {
			o := fakeOffering(faker, *store, n)
			if _, err := offerings.Upsert(ctx, o); err != nil {
				return fmt.Errorf("upsert offering %s/%s: %w", store.Key, o.Key, err)
			}
		}
		log.Info("store seeded", zap.String("store", store.Key), zap.Int("offerings", opts.PerStore))
	}
	return nil
}

func fakeOffering(f *gofakeit.Faker, store domain.Store, n int) domain.Offering {
	key := fmt.Sprintf("demo-%03d", n)
	return domain.Offering{
		StoreID:     store.ID,
		Key:         key,
		SKU:         fmt.Sprintf("SKU-%s-%03d", store.Currency, n),
		Name:        f.ProductName(),
		Description: f.ProductDescription(),
		Price:       decimal.NewFromFloat(f.Price(1, 250)).Round(2),
		Currency:    store.Currency,
		Sellable:    n%7 != 0,
		Attributes: map[string]interface{}{
			"images": []string{fmt.Sprintf("https://images.example.com/%s/%s.jpg", store.Key, key)},
		},
	}
}
