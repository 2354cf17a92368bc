package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecart/internal/domain"
	"storecart/internal/testutil"
)

type env struct {
	ctx      context.Context
	pool     *pgxpool.Pool
	repo     Repository
	storeID  string
	mugID    string
	shirtID  string
	mugPrice decimal.Decimal
}

func setupIntegration(t *testing.T) *env {
	t.Helper()
	pool := testutil.Pool(t)
	ctx := context.Background()
	storeID := testutil.SeedStore(ctx, t, pool, "berlin", "EUR")
	return &env{
		ctx:      ctx,
		pool:     pool,
		repo:     NewPostgres(pool, nil),
		storeID:  storeID,
		mugID:    testutil.SeedOffering(ctx, t, pool, storeID, "mug", "19.99"),
		shirtID:  testutil.SeedOffering(ctx, t, pool, storeID, "shirt", "25.00"),
		mugPrice: decimal.RequireFromString("19.99"),
	}
}

func (e *env) add(t *testing.T, owner domain.Owner, offeringID string, qty int, price decimal.Decimal) *domain.Cart {
	t.Helper()
	cart, _, err := e.repo.AddLineItem(e.ctx, AddLineItemInput{
		Scope:      Scope{StoreID: e.storeID, Owner: owner, Currency: "EUR", SessionTTL: time.Hour},
		OfferingID: offeringID,
		Quantity:   qty,
		UnitPrice:  price,
		Currency:   "EUR",
		Snapshot:   map[string]interface{}{"key": offeringID},
	})
	require.NoError(t, err)
	return cart
}

func (e *env) activeCarts(t *testing.T, col, value string) int {
	t.Helper()
	var n int
	err := e.pool.QueryRow(e.ctx,
		`SELECT count(*) FROM carts WHERE store_id = $1 AND `+col+`::text = $2 AND status = 'active' AND deleted_at IS NULL`,
		e.storeID, value,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestIntegration_IdempotentMergeWithSnapshot(t *testing.T) {
	e := setupIntegration(t)
	owner := domain.SessionOwner(uuid.New())

	first := e.add(t, owner, e.mugID, 1, e.mugPrice)
	require.Len(t, first.Lines, 1)
	assert.Equal(t, "19.99", first.Subtotal().StringFixed(2))

	_, err := e.pool.Exec(e.ctx, `UPDATE offerings SET price = 29.99 WHERE id = $1`, e.mugID)
	require.NoError(t, err)

	second := e.add(t, owner, e.mugID, 2, decimal.RequireFromString("29.99"))
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Lines, 1)
	assert.Equal(t, 3, second.Lines[0].Quantity)
	assert.Equal(t, "19.99", second.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "59.97", second.Subtotal().StringFixed(2))
}

func TestIntegration_ConcurrentFirstAddsYieldOneCart(t *testing.T) {
	e := setupIntegration(t)
	token := uuid.New()
	owner := domain.SessionOwner(token)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := e.repo.AddLineItem(e.ctx, AddLineItemInput{
				Scope:      Scope{StoreID: e.storeID, Owner: owner, Currency: "EUR"},
				OfferingID: e.mugID,
				Quantity:   1,
				UnitPrice:  e.mugPrice,
				Currency:   "EUR",
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, e.activeCarts(t, "session_token", token.String()))

	cart, err := e.repo.GetActive(e.ctx, Scope{StoreID: e.storeID, Owner: owner})
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, workers, cart.Lines[0].Quantity)
	assert.Equal(t, workers, cart.TotalItems())
}

func TestIntegration_ConcurrentCustomerAddsAcrossOfferings(t *testing.T) {
	e := setupIntegration(t)
	owner := domain.CustomerOwner("cust-" + uuid.NewString())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		offering := e.mugID
		if i%2 == 1 {
			offering = e.shirtID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.repo.AddLineItem(e.ctx, AddLineItemInput{
				Scope:      Scope{StoreID: e.storeID, Owner: owner, Currency: "EUR"},
				OfferingID: offering,
				Quantity:   2,
				UnitPrice:  decimal.RequireFromString("1.00"),
				Currency:   "EUR",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	id, _ := owner.CustomerID()
	assert.Equal(t, 1, e.activeCarts(t, "customer_id", id))

	cart, err := e.repo.GetActive(e.ctx, Scope{StoreID: e.storeID, Owner: owner})
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 20, cart.TotalItems())
	assert.Nil(t, cart.ExpiresAt, "customer carts do not expire")
}

func TestIntegration_RemoveThenAddTakesFreshSnapshot(t *testing.T) {
	e := setupIntegration(t)
	owner := domain.SessionOwner(uuid.New())
	scope := Scope{StoreID: e.storeID, Owner: owner, Currency: "EUR"}

	cart := e.add(t, owner, e.mugID, 2, e.mugPrice)
	cart, err := e.repo.RemoveLineItem(e.ctx, scope, cart.Lines[0].ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
	assert.True(t, cart.Subtotal().IsZero())

	cart = e.add(t, owner, e.mugID, 1, decimal.RequireFromString("17.00"))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 1, cart.Lines[0].Quantity)
	assert.Equal(t, "17.00", cart.Lines[0].UnitPrice.StringFixed(2))
}

func TestIntegration_ChangeQuantityKeepsSnapshot(t *testing.T) {
	e := setupIntegration(t)
	owner := domain.SessionOwner(uuid.New())
	scope := Scope{StoreID: e.storeID, Owner: owner}

	cart := e.add(t, owner, e.mugID, 1, e.mugPrice)
	cart, err := e.repo.ChangeLineItemQuantity(e.ctx, ChangeLineItemInput{Scope: scope, LineItemID: cart.Lines[0].ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, cart.TotalItems())
	assert.Equal(t, "99.95", cart.Subtotal().StringFixed(2))

	_, err = e.repo.ChangeLineItemQuantity(e.ctx, ChangeLineItemInput{Scope: scope, LineItemID: uuid.NewString(), Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_ExpiredCartIsReplacedOnLocate(t *testing.T) {
	e := setupIntegration(t)
	token := uuid.New()
	owner := domain.SessionOwner(token)

	old := e.add(t, owner, e.mugID, 1, e.mugPrice)
	require.NotNil(t, old.ExpiresAt)

	_, err := e.pool.Exec(e.ctx, `UPDATE carts SET expires_at = now() - interval '1 minute' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	_, err = e.repo.GetActive(e.ctx, Scope{StoreID: e.storeID, Owner: owner})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	fresh, res, err := e.repo.Locate(e.ctx, Scope{StoreID: e.storeID, Owner: owner, Currency: "EUR", SessionTTL: time.Hour})
	require.NoError(t, err)
	assert.True(t, res.CartCreated)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Empty(t, fresh.Lines)

	prev, err := e.repo.GetByID(e.ctx, e.storeID, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, prev.Status)
}

func TestIntegration_ExpireStale(t *testing.T) {
	e := setupIntegration(t)
	stale := e.add(t, domain.SessionOwner(uuid.New()), e.mugID, 1, e.mugPrice)
	e.add(t, domain.SessionOwner(uuid.New()), e.mugID, 1, e.mugPrice)
	e.add(t, domain.CustomerOwner("cust-1"), e.mugID, 1, e.mugPrice)

	_, err := e.pool.Exec(e.ctx, `UPDATE carts SET expires_at = now() - interval '1 hour' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	n, err := e.repo.ExpireStale(e.ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIntegration_SoftDelete(t *testing.T) {
	e := setupIntegration(t)
	owner := domain.CustomerOwner("cust-del")
	scope := Scope{StoreID: e.storeID, Owner: owner, Currency: "EUR"}

	cart := e.add(t, owner, e.mugID, 1, e.mugPrice)
	require.NoError(t, e.repo.SoftDelete(e.ctx, scope))

	_, err := e.repo.GetByID(e.ctx, e.storeID, cart.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, e.repo.SoftDelete(e.ctx, scope), domain.ErrNotFound)

	var lines int
	require.NoError(t, e.pool.QueryRow(e.ctx, `SELECT count(*) FROM cart_lines WHERE cart_id = $1 AND deleted_at IS NOT NULL`, cart.ID).Scan(&lines))
	assert.Equal(t, 1, lines, "rows are kept for history")
}

func TestIntegration_ClaimReownsSessionCart(t *testing.T) {
	e := setupIntegration(t)
	token := uuid.New()
	session := e.add(t, domain.SessionOwner(token), e.mugID, 2, e.mugPrice)

	cart, res, err := e.repo.Claim(e.ctx, ClaimInput{StoreID: e.storeID, SessionToken: token, CustomerID: "cust-9"})
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Equal(t, session.ID, cart.ID)
	id, ok := cart.Owner.CustomerID()
	require.True(t, ok)
	assert.Equal(t, "cust-9", id)
	assert.Nil(t, cart.ExpiresAt)

	_, _, err = e.repo.Claim(e.ctx, ClaimInput{StoreID: e.storeID, SessionToken: token, CustomerID: "cust-9"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_ClaimMergesIntoCustomerCart(t *testing.T) {
	e := setupIntegration(t)
	token := uuid.New()
	customer := domain.CustomerOwner("cust-merge")

	target := e.add(t, customer, e.mugID, 1, e.mugPrice)
	e.add(t, domain.SessionOwner(token), e.mugID, 2, decimal.RequireFromString("9.99"))
	e.add(t, domain.SessionOwner(token), e.shirtID, 1, decimal.RequireFromString("25.00"))

	cart, res, err := e.repo.Claim(e.ctx, ClaimInput{StoreID: e.storeID, SessionToken: token, CustomerID: "cust-merge"})
	require.NoError(t, err)
	assert.True(t, res.Merged)
	assert.Equal(t, int64(1), res.MergedLines)
	assert.Equal(t, int64(1), res.MovedLines)
	assert.Equal(t, target.ID, cart.ID)

	mug, ok := cart.FindLine(e.mugID)
	require.True(t, ok)
	assert.Equal(t, 3, mug.Quantity)
	assert.Equal(t, "19.99", mug.UnitPrice.StringFixed(2), "existing line keeps its snapshot")
	shirt, ok := cart.FindLine(e.shirtID)
	require.True(t, ok)
	assert.Equal(t, "25.00", shirt.UnitPrice.StringFixed(2))
	assert.Equal(t, "84.97", cart.Subtotal().StringFixed(2))

	assert.Equal(t, 0, e.activeCarts(t, "session_token", token.String()))
}
