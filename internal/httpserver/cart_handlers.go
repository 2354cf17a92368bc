package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storecart/internal/domain"
	cartsvc "storecart/internal/service/cart"
)

type cartService interface {
	GetActive(ctx context.Context, store domain.Store, owner domain.Owner) (*domain.Cart, error)
	Get(ctx context.Context, store domain.Store, owner domain.Owner, cartID string) (*domain.Cart, error)
	Locate(ctx context.Context, store domain.Store, owner domain.Owner) (*domain.Cart, error)
	AddLineItem(ctx context.Context, store domain.Store, owner domain.Owner, in cartsvc.AddLineItemInput) (*domain.Cart, error)
	ChangeLineItemQuantity(ctx context.Context, store domain.Store, owner domain.Owner, lineItemID string, in cartsvc.ChangeQuantityInput) (*domain.Cart, error)
	RemoveLineItem(ctx context.Context, store domain.Store, owner domain.Owner, lineItemID string) (*domain.Cart, error)
	Delete(ctx context.Context, store domain.Store, owner domain.Owner) error
	Claim(ctx context.Context, store domain.Store, customerID string, sessionToken uuid.UUID) (*domain.Cart, error)
}

type cartHandlers struct {
	svc cartService
}

// scope returns the store and owner of the request. It writes the error
// response itself and reports false when the handler should stop.
func (h cartHandlers) scope(c *gin.Context) (domain.Store, domain.Owner, bool) {
	store, ok := storeFromContext(c.Request.Context())
	if !ok {
		writeError(c, http.StatusInternalServerError, "General", "store missing from context")
		return domain.Store{}, domain.Owner{}, false
	}
	owner, err := requestOwner(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return domain.Store{}, domain.Owner{}, false
	}
	return store, owner, true
}

func (h cartHandlers) getActive(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	cart, err := h.svc.GetActive(c.Request.Context(), store, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	if cart == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}

func (h cartHandlers) get(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	if owner.IsZero() {
		respondError(c, domain.ErrNoActor)
		return
	}
	cart, err := h.svc.Get(c.Request.Context(), store, owner, strings.TrimSpace(c.Param("cartId")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}

func (h cartHandlers) locate(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	cart, err := h.svc.Locate(c.Request.Context(), store, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}

func (h cartHandlers) addLineItem(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	var in cartsvc.AddLineItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, domain.InvalidArgument("invalid JSON body: %v", err))
		return
	}
	cart, err := h.svc.AddLineItem(c.Request.Context(), store, owner, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}

func (h cartHandlers) changeLineItem(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	var in cartsvc.ChangeQuantityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, domain.InvalidArgument("invalid JSON body: %v", err))
		return
	}
	cart, err := h.svc.ChangeLineItemQuantity(c.Request.Context(), store, owner, c.Param("lineItemId"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}

func (h cartHandlers) removeLineItem(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	cart, err := h.svc.RemoveLineItem(c.Request.Context(), store, owner, c.Param("lineItemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}

func (h cartHandlers) delete(c *gin.Context) {
	store, owner, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), store, owner); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// claim hands the cart of the X-Session-Token header to the bearer's customer.
func (h cartHandlers) claim(c *gin.Context) {
	store, ok := storeFromContext(c.Request.Context())
	if !ok {
		writeError(c, http.StatusInternalServerError, "General", "store missing from context")
		return
	}
	customerID := customerFromContext(c.Request.Context())
	if customerID == "" {
		writeError(c, http.StatusUnauthorized, "invalid_token", "bearer token required")
		return
	}
	raw := sessionFromContext(c.Request.Context())
	token, err := uuid.Parse(raw)
	if err != nil {
		respondError(c, domain.InvalidArgument("malformed or missing %s header", sessionHeader))
		return
	}
	cart, err := h.svc.Claim(c.Request.Context(), store, customerID, token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(*cart, store))
}
