package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecart/internal/auth"
	cartrepo "storecart/internal/repository/cart"
	offeringrepo "storecart/internal/repository/offering"
	storerepo "storecart/internal/repository/store"
	cartsvc "storecart/internal/service/cart"
	offeringsvc "storecart/internal/service/offering"
	"storecart/internal/service/session"
	"storecart/internal/testutil"
)

func newIntegrationRouter(t *testing.T, pool *pgxpool.Pool, tokens tokenVerifier) *gin.Engine {
	t.Helper()
	offerings := offeringsvc.New(offeringrepo.NewPostgres(pool, nil))
	gin.SetMode(gin.TestMode)
	router, err := buildRouter(nil, pool, Deps{
		Stores:    storerepo.NewPostgres(pool),
		Carts:     cartsvc.New(cartrepo.NewPostgres(pool, nil), offerings, cartsvc.Config{SessionTTL: time.Hour}),
		Offerings: offerings,
		Sessions:  session.New(time.Hour),
		Tokens:    tokens,
	})
	require.NoError(t, err)
	return router
}

func decodeCart(t *testing.T, body []byte) cartResponse {
	t.Helper()
	var cart cartResponse
	require.NoError(t, json.Unmarshal(body, &cart))
	return cart
}

func TestCartFlow_Integration(t *testing.T) {
	pool := testutil.Pool(t)
	ctx := context.Background()
	storeID := testutil.SeedStore(ctx, t, pool, "berlin", "EUR")
	widgetID := testutil.SeedOffering(ctx, t, pool, storeID, "widget", "19.99")

	router := newIntegrationRouter(t, pool, nil)

	rec := serve(router, http.MethodPost, "/berlin/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	headers := map[string]string{sessionHeader: sess.SessionToken}

	rec = serve(router, http.MethodGet, "/berlin/carts/active", "", headers)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"`+widgetID+`","quantity":0}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"00000000-0000-0000-0000-000000000999","quantity":1}`, headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(router, http.MethodGet, "/berlin/carts/active", "", headers)
	assert.Equal(t, http.StatusNoContent, rec.Code, "rejected adds must not create a cart")

	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"`+widgetID+`","quantity":1}`, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = pool.Exec(ctx, `UPDATE offerings SET price = 99.00 WHERE id = $1`, widgetID)
	require.NoError(t, err)

	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"`+widgetID+`","quantity":2}`, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cart cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, sess.SessionToken, cart.SessionToken)
	require.Len(t, cart.LineItems, 1)
	assert.Equal(t, 3, cart.LineItems[0].Quantity)
	assert.Equal(t, "19.99", cart.LineItems[0].UnitPrice)
	assert.Equal(t, "59.97", cart.Subtotal)
	assert.Equal(t, 3, cart.TotalItems)
	assert.Equal(t, "Widget", cart.LineItems[0].Product.Name)

	rec = serve(router, http.MethodGet, "/berlin/carts/active", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	var again cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, cart.ID, again.ID)
	assert.Equal(t, cart.Subtotal, again.Subtotal)
}

func TestCartFlow_CustomerCartWinsOverSessionCart_Integration(t *testing.T) {
	pool := testutil.Pool(t)
	ctx := context.Background()
	storeID := testutil.SeedStore(ctx, t, pool, "berlin", "EUR")
	widgetID := testutil.SeedOffering(ctx, t, pool, storeID, "widget", "19.99")
	gadgetID := testutil.SeedOffering(ctx, t, pool, storeID, "gadget", "5.00")

	tokens := auth.NewManager("integration-secret", "storecart")
	router := newIntegrationRouter(t, pool, tokens)

	rec := serve(router, http.MethodPost, "/berlin/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	jwt, err := tokens.Sign("customer-7", time.Hour)
	require.NoError(t, err)

	sessionOnly := map[string]string{sessionHeader: sess.SessionToken}
	customerOnly := map[string]string{"Authorization": "Bearer " + jwt}
	both := map[string]string{sessionHeader: sess.SessionToken, "Authorization": "Bearer " + jwt}

	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"`+widgetID+`","quantity":1}`, sessionOnly)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionCart := decodeCart(t, rec.Body.Bytes())

	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"`+gadgetID+`","quantity":2}`, customerOnly)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	customerCart := decodeCart(t, rec.Body.Bytes())
	require.NotEqual(t, sessionCart.ID, customerCart.ID)

	rec = serve(router, http.MethodGet, "/berlin/carts/active", "", both)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeCart(t, rec.Body.Bytes())
	assert.Equal(t, customerCart.ID, got.ID)
	assert.Empty(t, got.SessionToken)
	assert.Equal(t, "10.00", got.Subtotal)

	rec = serve(router, http.MethodPost, "/berlin/carts/active/line-items", `{"productId":"`+widgetID+`","quantity":1}`, both)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeCart(t, rec.Body.Bytes())
	assert.Equal(t, customerCart.ID, got.ID)
	assert.Len(t, got.LineItems, 2)
	assert.Equal(t, "29.99", got.Subtotal)

	rec = serve(router, http.MethodGet, "/berlin/carts/active", "", sessionOnly)
	require.Equal(t, http.StatusOK, rec.Code)
	untouched := decodeCart(t, rec.Body.Bytes())
	assert.Equal(t, sessionCart.ID, untouched.ID)
	assert.Equal(t, 1, untouched.TotalItems)
	assert.Equal(t, "19.99", untouched.Subtotal)

	var carts int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM carts WHERE store_id = $1 AND status = 'active'`, storeID).Scan(&carts))
	assert.Equal(t, 2, carts)
}
