package httpserver

import (
	"time"

	"storecart/internal/domain"
)

type offeringResponse struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	SKU         string    `json:"sku,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Currency    string    `json:"currency"`
	Sellable    bool      `json:"sellable"`
	Images      []string  `json:"images"`
	CreatedAt   time.Time `json:"createdAt"`
}

type offeringListResponse struct {
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	Count   int                `json:"count"`
	Total   int                `json:"total"`
	Results []offeringResponse `json:"results"`
}

func toOfferingResponse(o domain.Offering) offeringResponse {
	images := parseImageList(o.Attributes["images"])
	if images == nil {
		images = []string{}
	}
	return offeringResponse{
		ID:          o.ID,
		Key:         o.Key,
		SKU:         o.SKU,
		Name:        o.DisplayName(),
		Description: o.Description,
		Price:       o.Price.StringFixed(2),
		Currency:    o.Currency,
		Sellable:    o.Sellable,
		Images:      images,
		CreatedAt:   o.CreatedAt,
	}
}
