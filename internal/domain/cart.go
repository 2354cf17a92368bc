package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartStatus governs whether a cart takes part in locate and merge calls.
// Only StatusActive carts do; the others are terminal.
type CartStatus string

const (
	StatusActive    CartStatus = "active"
	StatusAbandoned CartStatus = "abandoned"
	StatusConverted CartStatus = "converted"
	StatusExpired   CartStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s CartStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAbandoned, StatusConverted, StatusExpired:
		return true
	}
	return false
}

type Cart struct {
	ID             string
	StoreID        string
	Owner          Owner
	Status         CartStatus
	Currency       string
	ExpiresAt      *time.Time
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	Lines          []LineItem
}

// MaxLineQuantity caps the quantity of a single line, including the sum
// reached by merging adds.
const MaxLineQuantity = 10000

// LineItem is one offering in a cart. UnitPrice is captured when the line is
// first created and is not refreshed by later merges.
type LineItem struct {
	ID         string
	CartID     string
	OfferingID string
	Quantity   int
	UnitPrice  decimal.Decimal
	Currency   string
	Snapshot   map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Subtotal is quantity × snapshot unit price.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ActiveLines returns the lines that are not soft-deleted, in stored order.
func (c *Cart) ActiveLines() []LineItem {
	out := make([]LineItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.DeletedAt != nil {
			continue
		}
		out = append(out, l)
	}
	return out
}

// TotalItems is the sum of quantities over live lines.
func (c *Cart) TotalItems() int {
	total := 0
	for _, l := range c.ActiveLines() {
		total += l.Quantity
	}
	return total
}

// Subtotal is the sum of line subtotals over live lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.ActiveLines() {
		total = total.Add(l.Subtotal())
	}
	return total
}

// FindLine returns the live line for offeringID, if any.
func (c *Cart) FindLine(offeringID string) (LineItem, bool) {
	for _, l := range c.ActiveLines() {
		if l.OfferingID == offeringID {
			return l, true
		}
	}
	return LineItem{}, false
}

// IsExpired reports whether the cart carries an expiry that has passed at now.
func (c *Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}
