package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offering is a catalog product as sold in one store: its own price and
// availability, independent of other stores carrying the same product.
type Offering struct {
	ID          string
	StoreID     string
	Key         string
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Sellable    bool
	Attributes  map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName falls back to the key when the offering has no name.
func (o Offering) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Key
}

// Images returns the image URLs stored under the "images" attribute.
func (o Offering) Images() []string {
	raw, ok := o.Attributes["images"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
