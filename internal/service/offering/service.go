package offering

import (
	"context"
	"fmt"

	"storecart/internal/domain"
	offeringrepo "storecart/internal/repository/offering"
)

type Service struct {
	repo offeringrepo.Repository
	live offeringrepo.Repository
}

type Option func(*Service)

// WithLiveRepo makes Sellable read from live, the uncached backend of a
// cached catalog repo. List and Get keep using the catalog repo.
func WithLiveRepo(live offeringrepo.Repository) Option {
	return func(s *Service) {
		if live != nil {
			s.live = live
		}
	}
}

func New(repo offeringrepo.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, live: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, storeID string) ([]domain.Offering, error) {
	return s.repo.ListByStore(ctx, storeID)
}

func (s *Service) Get(ctx context.Context, storeID, id string) (*domain.Offering, error) {
	return s.repo.GetByID(ctx, storeID, id)
}

// Sellable returns the offering only when it exists in the store and can be
// added to a cart.
func (s *Service) Sellable(ctx context.Context, storeID, id string) (*domain.Offering, error) {
	o, err := s.live.GetByID(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if !o.Sellable {
		return nil, fmt.Errorf("%w: offering %q is not sellable", domain.ErrNotFound, id)
	}
	return o, nil
}
