package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is a freshly issued anonymous session token.
type Session struct {
	Token     uuid.UUID
	ExpiresIn time.Duration
}

// Service issues anonymous session tokens. Tokens are not stored: a token
// only gains meaning once a cart is created under it.
type Service struct {
	ttl time.Duration
}

func New(ttl time.Duration) *Service {
	return &Service{ttl: ttl}
}

func (s *Service) Issue(ctx context.Context) (Session, error) {
	tok, err := uuid.NewRandom()
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}
	return Session{Token: tok, ExpiresIn: s.ttl}, nil
}

// TTL is the sliding lifetime of carts owned by a session token.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
