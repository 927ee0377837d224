package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/storecart/internal/model"
)

// MemoryStore implements Store interface with in-memory storage.
type MemoryStore struct {
	mu       sync.RWMutex
	stores   map[string]model.Store
	products map[string]model.Product
	items    map[string]model.CartItem
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stores:   make(map[string]model.Store),
		products: make(map[string]model.Product),
		items:    make(map[string]model.CartItem),
	}
}

// PutStore inserts or replaces a store.
func (s *MemoryStore) PutStore(st model.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	s.stores[st.ID] = st
}

// PutProduct inserts or replaces a product.
func (s *MemoryStore) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
}

// Seed loads fixture stores and products.
func (s *MemoryStore) Seed(ctx context.Context, fixtures *Fixtures) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	if fixtures == nil {
		return nil
	}

	for _, st := range fixtures.Stores {
		s.PutStore(st)
	}
	for _, p := range fixtures.Products {
		s.PutProduct(p)
	}

	return nil
}

// FindStoreByIDAndOwner returns the store with the given ID owned by userID.
func (s *MemoryStore) FindStoreByIDAndOwner(ctx context.Context, storeID, userID string) (*model.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find store: %w", err)
	}

	if storeID == "" || userID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.stores[storeID]
	if !exists || st.OwnerID != userID {
		return nil, ErrNotFound
	}

	return &st, nil
}

// FindCartItem returns the first cart item matching filter.
func (s *MemoryStore) FindCartItem(ctx context.Context, filter model.CartFilter) (*model.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find cart item: %w", err)
	}

	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.ID != "" {
		item, exists := s.items[filter.ID]
		if !exists || !filter.Matches(&item) {
			return nil, ErrNotFound
		}
		return &item, nil
	}

	for _, item := range s.sortedItemsLocked() {
		if filter.Matches(&item) {
			return &item, nil
		}
	}

	return nil, ErrNotFound
}

// FindCartItems returns all cart items matching filter with their product joined.
func (s *MemoryStore) FindCartItems(ctx context.Context, filter model.CartFilter) ([]model.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find cart items: %w", err)
	}

	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.CartItem, 0)
	for _, item := range s.sortedItemsLocked() {
		if !filter.Matches(&item) {
			continue
		}
		if p, exists := s.products[item.ProductID]; exists {
			item.Product = &p
		}
		items = append(items, item)
	}

	return items, nil
}

// CreateCartItem persists a new cart item. The duplicate check and the insert
// happen under the same lock.
func (s *MemoryStore) CreateCartItem(ctx context.Context, item *model.CartItem) (*model.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create cart item: %w", err)
	}

	if item == nil {
		return nil, ErrNilItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[item.ProductID]; !exists {
		return nil, ErrUnknownProduct
	}

	triple := model.CartFilter{
		StoreID:   item.StoreID,
		UserID:    item.UserID,
		ProductID: item.ProductID,
	}
	for _, existing := range s.items {
		if triple.Matches(&existing) {
			return nil, ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	newItem := model.CartItem{
		ID:        uuid.New().String(),
		StoreID:   item.StoreID,
		UserID:    item.UserID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.items[newItem.ID] = newItem

	return &newItem, nil
}

// UpdateCartItemQuantity overwrites the quantity of an existing cart item.
func (s *MemoryStore) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) (*model.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return nil, ErrNotFound
	}

	item.Quantity = quantity
	item.UpdatedAt = time.Now().UTC()
	s.items[id] = item

	return &item, nil
}

// DeleteCartItem removes a cart item by its ID.
func (s *MemoryStore) DeleteCartItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return ErrNotFound
	}

	delete(s.items, id)

	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// sortedItemsLocked returns items ordered by creation time. Callers must hold mu.
func (s *MemoryStore) sortedItemsLocked() []model.CartItem {
	items := make([]model.CartItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}

	slices.SortFunc(items, func(a, b model.CartItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return items
}
