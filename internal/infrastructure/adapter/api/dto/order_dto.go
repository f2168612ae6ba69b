package dto

import "time"

// CreateOrderRequest represents the API request for creating an order
type CreateOrderRequest struct {
	Customer string `json:"customer" binding:"required"`
	Item     string `json:"item" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// OrderResponse represents the API response for an order
type OrderResponse struct {
	ID        string    `json:"id"`
	Customer  string    `json:"customer"`
	Item      string    `json:"item"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditEntryResponse represents one audit trail record in API responses
type AuditEntryResponse struct {
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurredAt"`
}
