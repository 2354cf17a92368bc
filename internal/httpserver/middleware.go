package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storecart/internal/auth"
	"storecart/internal/domain"
	"storecart/internal/logger"
	"storecart/internal/service/actor"
)

type ctxKey string

const (
	storeCtxKey    ctxKey = "store"
	customerCtxKey ctxKey = "customerID"
	sessionCtxKey  ctxKey = "sessionToken"

	sessionHeader = "X-Session-Token"
)

type storeLookup interface {
	GetByKey(ctx context.Context, key string) (*domain.Store, error)
}

type tokenVerifier interface {
	Verify(token string) (string, error)
}

// storeMiddleware resolves :storeKey and puts the store on the request context.
func storeMiddleware(stores storeLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("storeKey"))
		if key == "" {
			writeError(c, http.StatusBadRequest, "InvalidInput", "store key required")
			return
		}
		store, err := stores.GetByKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(c, http.StatusNotFound, "ResourceNotFound", "store not found")
				return
			}
			_ = c.Error(err)
			writeError(c, http.StatusInternalServerError, "General", "failed to load store")
			return
		}
		ctx := context.WithValue(c.Request.Context(), storeCtxKey, store)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// actorMiddleware collects the identity hints of a request: the customer id
// from a verified bearer token and the raw session token header. A bearer
// token that fails verification is rejected outright.
func actorMiddleware(verifier tokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		if raw != "" {
			if verifier == nil {
				writeError(c, http.StatusUnauthorized, "invalid_token", "token verification unavailable")
				return
			}
			customerID, err := verifier.Verify(raw)
			if err != nil {
				logger.FromGin(c).Debug("bearer token rejected", zap.Error(err))
				writeError(c, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}
			ctx = context.WithValue(ctx, customerCtxKey, customerID)
		}
		if tok := strings.TrimSpace(c.GetHeader(sessionHeader)); tok != "" {
			ctx = context.WithValue(ctx, sessionCtxKey, tok)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func storeFromContext(ctx context.Context) (domain.Store, bool) {
	s, ok := ctx.Value(storeCtxKey).(*domain.Store)
	if !ok || s == nil {
		return domain.Store{}, false
	}
	return *s, true
}

func customerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(customerCtxKey).(string)
	return v
}

func sessionFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionCtxKey).(string)
	return v
}

// requestOwner resolves the cart owner from the identity hints. A request
// with no hints yields the zero owner and no error; callers decide whether
// that is acceptable.
func requestOwner(ctx context.Context) (domain.Owner, error) {
	owner, err := actor.Resolve(customerFromContext(ctx), sessionFromContext(ctx))
	if errors.Is(err, domain.ErrNoActor) {
		return domain.Owner{}, nil
	}
	return owner, err
}
