// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors for cart requests.
var (
	ErrMissingUserID      = errors.New("user ID is required")
	ErrMissingProductID   = errors.New("product ID is required")
	ErrInvalidQuantity    = errors.New("quantity of at least 1 is required")
	ErrFractionalQuantity = errors.New("quantity must be a whole number")
	ErrQuantityTooLarge   = errors.New("quantity is too large")
	ErrMissingStoreID     = errors.New("store ID is required in the URL")
	ErrMissingCartItemID  = errors.New("cart item ID is required")
)

// Validation constants.
const (
	MinQuantity = 1
	MaxQuantity = math.MaxInt32
)

// Store is a tenant of the platform. Every store has exactly one owner.
type Store struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string    `json:"ownerId" gorm:"column:user_id;type:varchar(191);not null;index"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table backing Store.
func (Store) TableName() string { return "stores" }

// Product is sold by a store. Carts only reference it.
type Product struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StoreID   string          `json:"storeId" gorm:"type:varchar(36);not null;index"`
	Name      string          `json:"name" gorm:"type:varchar(255);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	ImageURL  string          `json:"imageUrl,omitempty" gorm:"type:varchar(1024)"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TableName returns the table backing Product.
func (Product) TableName() string { return "products" }

// CartItem is one product quantity held by one user within one store.
// At most one CartItem exists per (UserID, ProductID, StoreID).
type CartItem struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StoreID   string    `json:"storeId" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_user_product_store,priority:3"`
	UserID    string    `json:"userId" gorm:"type:varchar(191);not null;uniqueIndex:idx_cart_user_product_store,priority:1"`
	ProductID string    `json:"productId" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_user_product_store,priority:2"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Product is only populated when listing a cart.
	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID;references:ID"`
}

// TableName returns the table backing CartItem.
func (CartItem) TableName() string { return "cart_items" }

// CartFilter selects cart items by equality. Empty fields are ignored.
type CartFilter struct {
	ID        string
	StoreID   string
	UserID    string
	ProductID string
}

// IsEmpty reports whether the filter has no conditions.
func (f CartFilter) IsEmpty() bool {
	return f.ID == "" && f.StoreID == "" && f.UserID == "" && f.ProductID == ""
}

// Matches reports whether item satisfies every non-empty field of the filter.
func (f CartFilter) Matches(item *CartItem) bool {
	switch {
	case f.ID != "" && f.ID != item.ID:
		return false
	case f.StoreID != "" && f.StoreID != item.StoreID:
		return false
	case f.UserID != "" && f.UserID != item.UserID:
		return false
	case f.ProductID != "" && f.ProductID != item.ProductID:
		return false
	}
	return true
}

// AddCartItemRequest is the body of an add-to-cart request.
// Quantity is a pointer so that an absent value can be told apart from zero.
type AddCartItemRequest struct {
	UserID    string   `json:"userId"`
	ProductID string   `json:"productId"`
	Quantity  *float64 `json:"quantity"`
}

// Validate checks the request fields in order: user, product, quantity, store,
// and returns the parsed quantity.
func (r *AddCartItemRequest) Validate(storeID string) (int, error) {
	if r.UserID == "" {
		return 0, ErrMissingUserID
	}

	if r.ProductID == "" {
		return 0, ErrMissingProductID
	}

	quantity, err := ParseQuantity(r.Quantity)
	if err != nil {
		return 0, err
	}

	if storeID == "" {
		return 0, ErrMissingStoreID
	}

	return quantity, nil
}

// UpdateCartItemRequest is the body of a quantity update request.
type UpdateCartItemRequest struct {
	Quantity *float64 `json:"quantity"`
}

// ParseQuantity converts a decoded JSON quantity into a positive integer.
func ParseQuantity(q *float64) (int, error) {
	if q == nil || *q < MinQuantity || math.IsNaN(*q) {
		return 0, ErrInvalidQuantity
	}

	if *q != math.Trunc(*q) {
		return 0, ErrFractionalQuantity
	}

	if *q > MaxQuantity {
		return 0, ErrQuantityTooLarge
	}

	return int(*q), nil
}
