package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vyrodovalexey/storecart/internal/model"
)

// GormStore implements Store on top of a relational database through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open GORM connection. The connection should be opened
// with TranslateError enabled so that unique violations surface as
// gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenMySQL connects to MySQL using dsn and returns a GormStore.
func OpenMySQL(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}

	return NewGormStore(db), nil
}

// Migrate creates or updates the stores, products and cart_items tables,
// including the unique (user_id, product_id, store_id) index on cart_items.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&model.Store{},
		&model.Product{},
		&model.CartItem{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Seed upserts fixture stores and products.
func (s *GormStore) Seed(ctx context.Context, fixtures *Fixtures) error {
	if fixtures == nil {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Each Create needs a fresh chain; a finished statement must not be reused.
		if len(fixtures.Stores) > 0 {
			if err := upsert(tx).Create(&fixtures.Stores).Error; err != nil {
				return fmt.Errorf("seeding stores: %w", err)
			}
		}

		if len(fixtures.Products) > 0 {
			if err := upsert(tx).Create(&fixtures.Products).Error; err != nil {
				return fmt.Errorf("seeding products: %w", err)
			}
		}

		return nil
	})
}

func upsert(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{UpdateAll: true})
}

// FindStoreByIDAndOwner returns the store with the given ID owned by userID.
func (s *GormStore) FindStoreByIDAndOwner(ctx context.Context, storeID, userID string) (*model.Store, error) {
	if storeID == "" || userID == "" {
		return nil, ErrInvalidID
	}

	var st model.Store
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", storeID, userID).
		First(&st).Error
	if err != nil {
		return nil, translate("find store", err)
	}

	return &st, nil
}

// FindCartItem returns the first cart item matching filter.
func (s *GormStore) FindCartItem(ctx context.Context, filter model.CartFilter) (*model.CartItem, error) {
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}

	var item model.CartItem
	err := s.db.WithContext(ctx).
		Where(filterConditions(filter)).
		Order("created_at, id").
		First(&item).Error
	if err != nil {
		return nil, translate("find cart item", err)
	}

	return &item, nil
}

// FindCartItems returns all cart items matching filter with their product joined.
func (s *GormStore) FindCartItems(ctx context.Context, filter model.CartFilter) ([]model.CartItem, error) {
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}

	items := make([]model.CartItem, 0)
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where(filterConditions(filter)).
		Order("created_at, id").
		Find(&items).Error
	if err != nil {
		return nil, translate("find cart items", err)
	}

	return items, nil
}

// CreateCartItem persists a new cart item. The existence check and the insert
// run in one transaction; the unique index catches concurrent inserts that
// slip past the check.
func (s *GormStore) CreateCartItem(ctx context.Context, item *model.CartItem) (*model.CartItem, error) {
	if item == nil {
		return nil, ErrNilItem
	}

	newItem := model.CartItem{
		ID:        uuid.New().String(),
		StoreID:   item.StoreID,
		UserID:    item.UserID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var products int64
		if err := tx.Model(&model.Product{}).Where("id = ?", item.ProductID).Count(&products).Error; err != nil {
			return err
		}
		if products == 0 {
			return ErrUnknownProduct
		}

		var count int64
		err := tx.Model(&model.CartItem{}).
			Where("user_id = ? AND product_id = ? AND store_id = ?", item.UserID, item.ProductID, item.StoreID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyExists
		}

		return tx.Create(&newItem).Error
	})
	if err != nil {
		return nil, translate("create cart item", err)
	}

	return &newItem, nil
}

// UpdateCartItemQuantity overwrites the quantity of an existing cart item.
func (s *GormStore) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) (*model.CartItem, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var item model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			return err
		}
		item.Quantity = quantity
		return tx.Model(&item).Update("quantity", quantity).Error
	})
	if err != nil {
		return nil, translate("update cart item", err)
	}

	return &item, nil
}

// DeleteCartItem removes a cart item by its ID.
func (s *GormStore) DeleteCartItem(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.CartItem{})
	if res.Error != nil {
		return translate("delete cart item", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return sqlDB.Close()
}

// filterConditions converts a CartFilter to a column map so that only
// non-empty fields become WHERE conditions.
func filterConditions(filter model.CartFilter) map[string]any {
	conds := make(map[string]any, 4)
	if filter.ID != "" {
		conds["id"] = filter.ID
	}
	if filter.StoreID != "" {
		conds["store_id"] = filter.StoreID
	}
	if filter.UserID != "" {
		conds["user_id"] = filter.UserID
	}
	if filter.ProductID != "" {
		conds["product_id"] = filter.ProductID
	}
	return conds
}

// translate maps GORM errors to store errors.
func translate(operation string, err error) error {
	switch {
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists
	case errors.Is(err, ErrUnknownProduct), errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrUnknownProduct
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
