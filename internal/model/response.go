package model

import "time"

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Cart event types.
const (
	CartEventItemAdded   = "cart.item_added"
	CartEventItemUpdated = "cart.item_updated"
	CartEventItemRemoved = "cart.item_removed"
)

// CartEvent describes a change to a user's cart within a store.
type CartEvent struct {
	Type       string    `json:"type"`
	StoreID    string    `json:"storeId"`
	UserID     string    `json:"userId"`
	CartItemID string    `json:"cartItemId"`
	ProductID  string    `json:"productId,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCartEvent creates an event of the given type for item.
func NewCartEvent(eventType string, item *CartItem) CartEvent {
	return CartEvent{
		Type:       eventType,
		StoreID:    item.StoreID,
		UserID:     item.UserID,
		CartItemID: item.ID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		Timestamp:  time.Now().UTC(),
	}
}
