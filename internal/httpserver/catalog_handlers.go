package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storecart/internal/domain"
	"storecart/internal/service/session"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 500
)

type offeringService interface {
	List(ctx context.Context, storeID string) ([]domain.Offering, error)
	Get(ctx context.Context, storeID, id string) (*domain.Offering, error)
}

type sessionIssuer interface {
	Issue(ctx context.Context) (session.Session, error)
}

type sessionResponse struct {
	SessionToken string `json:"sessionToken"`
	ExpiresIn    int64  `json:"expires_in"`
}

func listOfferingsHandler(svc offeringService) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := storeFromContext(c.Request.Context())
		if !ok {
			writeError(c, http.StatusInternalServerError, "General", "store missing from context")
			return
		}
		limit, offset, err := parsePage(c)
		if err != nil {
			respondError(c, err)
			return
		}
		all, err := svc.List(c.Request.Context(), store.ID)
		if err != nil {
			respondError(c, err)
			return
		}

		page := []domain.Offering{}
		if offset < len(all) {
			end := offset + limit
			if end > len(all) {
				end = len(all)
			}
			page = all[offset:end]
		}
		results := make([]offeringResponse, 0, len(page))
		for _, o := range page {
			results = append(results, toOfferingResponse(o))
		}
		c.JSON(http.StatusOK, offeringListResponse{
			Limit:   limit,
			Offset:  offset,
			Count:   len(results),
			Total:   len(all),
			Results: results,
		})
	}
}

func getOfferingHandler(svc offeringService) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := storeFromContext(c.Request.Context())
		if !ok {
			writeError(c, http.StatusInternalServerError, "General", "store missing from context")
			return
		}
		o, err := svc.Get(c.Request.Context(), store.ID, strings.TrimSpace(c.Param("offeringId")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toOfferingResponse(*o))
	}
}

func issueSessionHandler(svc sessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.Issue(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sessionResponse{
			SessionToken: s.Token.String(),
			ExpiresIn:    int64(s.ExpiresIn.Seconds()),
		})
	}
}

func parsePage(c *gin.Context) (int, int, error) {
	limit := defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageLimit {
			return 0, 0, domain.InvalidArgument("limit must be between 1 and %d", maxPageLimit)
		}
		limit = v
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, domain.InvalidArgument("offset must be a non-negative integer")
		}
		offset = v
	}
	return limit, offset, nil
}
