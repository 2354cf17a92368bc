package offering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storecart/internal/domain"
	"storecart/internal/logger"
)

const loadTimeout = 5 * time.Second

// cachedRepo serves GetByID from Redis and falls through to next on a miss
// or on any Redis error. Concurrent misses for one key share a single load.
type cachedRepo struct {
	next   Repository
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCached wraps next with a read-through Redis cache.
func NewCached(next Repository, client *redis.Client, ttl time.Duration, log *zap.Logger) Repository {
	return &cachedRepo{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.OrNop(log).Named("offering_cache"),
	}
}

type cachedOffering struct {
	ID          string                 `json:"id"`
	StoreID     string                 `json:"storeId"`
	Key         string                 `json:"key"`
	SKU         string                 `json:"sku"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Price       decimal.Decimal        `json:"price"`
	Currency    string                 `json:"currency"`
	Sellable    bool                   `json:"sellable"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

func (c *cachedRepo) ListByStore(ctx context.Context, storeID string) ([]domain.Offering, error) {
	return c.next.ListByStore(ctx, storeID)
}

func (c *cachedRepo) GetByID(ctx context.Context, storeID, id string) (*domain.Offering, error) {
	key := cacheKey(storeID, id)

	if o, err := c.get(ctx, key); err == nil {
		return o, nil
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	// The load is shared by every waiter on key and outlives the caller that
	// started it.
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		o, err := c.next.GetByID(loadCtx, storeID, id)
		if err != nil {
			return nil, err
		}
		if err := c.set(loadCtx, key, o); err != nil {
			c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	o := *v.(*domain.Offering)
	return &o, nil
}

func (c *cachedRepo) Upsert(ctx context.Context, offering domain.Offering) (*domain.Offering, error) {
	out, err := c.next.Upsert(ctx, offering)
	if err != nil {
		return nil, err
	}
	if err := c.client.Del(ctx, cacheKey(out.StoreID, out.ID)).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("id", out.ID), zap.Error(err))
	}
	return out, nil
}

func (c *cachedRepo) get(ctx context.Context, key string) (*domain.Offering, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var co cachedOffering
	if err := json.Unmarshal(data, &co); err != nil {
		return nil, fmt.Errorf("decode cached offering: %w", err)
	}
	return &domain.Offering{
		ID:          co.ID,
		StoreID:     co.StoreID,
		Key:         co.Key,
		SKU:         co.SKU,
		Name:        co.Name,
		Description: co.Description,
		Price:       co.Price,
		Currency:    co.Currency,
		Sellable:    co.Sellable,
		Attributes:  co.Attributes,
		CreatedAt:   co.CreatedAt,
		UpdatedAt:   co.UpdatedAt,
	}, nil
}

func (c *cachedRepo) set(ctx context.Context, key string, o *domain.Offering) error {
	data, err := json.Marshal(cachedOffering{
		ID:          o.ID,
		StoreID:     o.StoreID,
		Key:         o.Key,
		SKU:         o.SKU,
		Name:        o.Name,
		Description: o.Description,
		Price:       o.Price,
		Currency:    o.Currency,
		Sellable:    o.Sellable,
		Attributes:  o.Attributes,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode offering: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func cacheKey(storeID, id string) string {
	return fmt.Sprintf("storecart:offering:%s:%s", storeID, id)
}
