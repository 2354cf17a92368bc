// Package actor maps request identity hints to a cart owner.
package actor

import (
	"strings"

	"github.com/google/uuid"

	"storecart/internal/domain"
)

// Resolve picks the cart owner for a request. An authenticated customer id
// wins and the session token is then ignored, even if malformed. Otherwise
// the session token must be a UUID. With neither, domain.ErrNoActor.
func Resolve(customerID, sessionToken string) (domain.Owner, error) {
	if id := strings.TrimSpace(customerID); id != "" {
		return domain.CustomerOwner(id), nil
	}
	raw := strings.TrimSpace(sessionToken)
	if raw == "" {
		return domain.Owner{}, domain.ErrNoActor
	}
	tok, err := uuid.Parse(raw)
	if err != nil || tok == uuid.Nil {
		return domain.Owner{}, domain.InvalidArgument("malformed session token %q", raw)
	}
	return domain.SessionOwner(tok), nil
}
