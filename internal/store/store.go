// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/storecart/internal/model"
)

// Store errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyExists  = errors.New("cart item already exists")
	ErrUnknownProduct = errors.New("product does not exist")
	ErrInvalidID      = errors.New("invalid ID")
	ErrEmptyFilter    = errors.New("cart filter must have at least one condition")
	ErrNilItem        = errors.New("cart item cannot be nil")
)

// Store is the persistence collaborator used by the cart handlers.
type Store interface {
	// FindStoreByIDAndOwner returns the store with the given ID owned by userID.
	FindStoreByIDAndOwner(ctx context.Context, storeID, userID string) (*model.Store, error)

	// FindCartItem returns the first cart item matching filter.
	FindCartItem(ctx context.Context, filter model.CartFilter) (*model.CartItem, error)

	// FindCartItems returns all cart items matching filter with their product joined.
	FindCartItems(ctx context.Context, filter model.CartFilter) ([]model.CartItem, error)

	// CreateCartItem persists a new cart item and returns it with a generated ID.
	// It returns ErrAlreadyExists when the (user, product, store) triple is taken
	// and ErrUnknownProduct when the product does not exist.
	CreateCartItem(ctx context.Context, item *model.CartItem) (*model.CartItem, error)

	// UpdateCartItemQuantity overwrites the quantity of an existing cart item.
	UpdateCartItemQuantity(ctx context.Context, id string, quantity int) (*model.CartItem, error)

	// DeleteCartItem removes a cart item by its ID.
	DeleteCartItem(ctx context.Context, id string) error

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// Seeder loads reference data (stores and products) into a Store.
type Seeder interface {
	Seed(ctx context.Context, fixtures *Fixtures) error
}
