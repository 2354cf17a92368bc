package domain

import "time"

// Store scopes carts and offerings. Every cart belongs to exactly one store.
type Store struct {
	ID        string
	Key       string
	Name      string
	Currency  string
	CreatedAt time.Time
}
