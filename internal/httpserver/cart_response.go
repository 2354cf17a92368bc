package httpserver

import (
	"strings"

	"storecart/internal/domain"
)

type cartResponse struct {
	ID           string             `json:"id"`
	SessionToken string             `json:"sessionToken,omitempty"`
	Store        string             `json:"store"`
	Status       string             `json:"status"`
	Currency     string             `json:"currency"`
	LineItems    []lineItemResponse `json:"lineItems"`
	TotalItems   int                `json:"totalItems"`
	Subtotal     string             `json:"subtotal"`
}

type lineItemResponse struct {
	ID        string          `json:"id"`
	Product   productResponse `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice string          `json:"unitPrice"`
	Subtotal  string          `json:"subtotal"`
}

// productResponse is the offering as captured on the line.
type productResponse struct {
	ID     string   `json:"id"`
	SKU    string   `json:"sku,omitempty"`
	Key    string   `json:"key,omitempty"`
	Name   string   `json:"name"`
	Slug   string   `json:"slug,omitempty"`
	Images []string `json:"images"`
}

type lineSnapshot struct {
	ProductKey  string
	ProductName string
	SKU         string
	ProductSlug string
	Images      []string
}

func toCartResponse(cart domain.Cart, store domain.Store) cartResponse {
	lines := cart.ActiveLines()
	items := make([]lineItemResponse, 0, len(lines))
	for _, line := range lines {
		snap := parseLineSnapshot(line.Snapshot)
		name := snap.ProductName
		if name == "" {
			name = snap.ProductKey
		}
		if name == "" {
			name = line.OfferingID
		}
		slug := snap.ProductSlug
		if slug == "" {
			slug = snap.ProductKey
		}
		images := snap.Images
		if images == nil {
			images = []string{}
		}
		items = append(items, lineItemResponse{
			ID: line.ID,
			Product: productResponse{
				ID:     line.OfferingID,
				SKU:    snap.SKU,
				Key:    snap.ProductKey,
				Name:   name,
				Slug:   slug,
				Images: images,
			},
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
		})
	}

	out := cartResponse{
		ID:         cart.ID,
		Store:      store.Key,
		Status:     string(cart.Status),
		Currency:   cart.Currency,
		LineItems:  items,
		TotalItems: cart.TotalItems(),
		Subtotal:   cart.Subtotal().StringFixed(2),
	}
	if tok, ok := cart.Owner.SessionToken(); ok {
		out.SessionToken = tok.String()
	}
	return out
}

func parseLineSnapshot(raw map[string]interface{}) lineSnapshot {
	var out lineSnapshot
	if raw == nil {
		return out
	}
	if v, ok := raw["productKey"].(string); ok {
		out.ProductKey = v
	}
	if v, ok := raw["productName"].(string); ok {
		out.ProductName = v
	}
	if v, ok := raw["sku"].(string); ok {
		out.SKU = v
	}
	if v, ok := raw["productSlug"].(string); ok {
		out.ProductSlug = v
	}
	out.Images = parseImageList(raw["images"])
	return out
}

func parseImageList(raw interface{}) []string {
	var urls []string
	switch v := raw.(type) {
	case []string:
		urls = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				urls = append(urls, s)
			}
		}
	}
	var out []string
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
