package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storecart/internal/domain"
)

// Scope addresses the single active cart of one owner in one store.
type Scope struct {
	StoreID string
	Owner   domain.Owner
	// Currency is used when a new cart has to be created.
	Currency string
	// SessionTTL slides expires_at on every touch of an anonymous cart.
	// Zero leaves anonymous carts without expiry.
	SessionTTL time.Duration
}

type AddLineItemInput struct {
	Scope
	OfferingID string
	Quantity   int
	// UnitPrice and Snapshot are only written when a new line is created.
	UnitPrice decimal.Decimal
	Currency  string
	Snapshot  map[string]interface{}
}

type ChangeLineItemInput struct {
	Scope
	LineItemID string
	Quantity   int
}

type ClaimInput struct {
	StoreID      string
	SessionToken uuid.UUID
	CustomerID   string
}

// MergeResult describes what a locate or add call changed.
type MergeResult struct {
	CartCreated bool
	LineCreated bool
	// CreateRaced is set when the cart insert lost a uniqueness race and the
	// winner's cart was used instead.
	CreateRaced bool
}

type ClaimResult struct {
	// Merged is false when the session cart was simply handed to the customer.
	Merged      bool
	MovedLines  int64
	MergedLines int64
	SourceID    string
}

type Repository interface {
	GetByID(ctx context.Context, storeID, id string) (*domain.Cart, error)
	// GetActive returns domain.ErrNotFound when the owner has no live cart.
	GetActive(ctx context.Context, scope Scope) (*domain.Cart, error)
	Locate(ctx context.Context, scope Scope) (*domain.Cart, MergeResult, error)
	AddLineItem(ctx context.Context, in AddLineItemInput) (*domain.Cart, MergeResult, error)
	ChangeLineItemQuantity(ctx context.Context, in ChangeLineItemInput) (*domain.Cart, error)
	RemoveLineItem(ctx context.Context, scope Scope, lineItemID string) (*domain.Cart, error)
	SoftDelete(ctx context.Context, scope Scope) error
	Claim(ctx context.Context, in ClaimInput) (*domain.Cart, ClaimResult, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
