package store

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/storecart/internal/model"
)

// Fixtures holds stores and products to preload, since neither is managed
// through the cart API.
type Fixtures struct {
	Stores   []model.Store
	Products []model.Product
}

type fixtureFile struct {
	Stores []struct {
		ID      string `yaml:"id"`
		OwnerID string `yaml:"ownerId"`
		Name    string `yaml:"name"`
	} `yaml:"stores"`
	Products []struct {
		ID       string `yaml:"id"`
		StoreID  string `yaml:"storeId"`
		Name     string `yaml:"name"`
		Price    string `yaml:"price"`
		ImageURL string `yaml:"imageUrl"`
	} `yaml:"products"`
}

// ParseFixtures decodes a YAML fixture document.
func ParseFixtures(r io.Reader) (*Fixtures, error) {
	var file fixtureFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}

	fixtures := &Fixtures{
		Stores:   make([]model.Store, 0, len(file.Stores)),
		Products: make([]model.Product, 0, len(file.Products)),
	}

	for i, s := range file.Stores {
		if s.ID == "" || s.OwnerID == "" {
			return nil, fmt.Errorf("fixture store %d: id and ownerId are required", i)
		}
		fixtures.Stores = append(fixtures.Stores, model.Store{
			ID:      s.ID,
			OwnerID: s.OwnerID,
			Name:    s.Name,
		})
	}

	for i, p := range file.Products {
		if p.ID == "" || p.StoreID == "" {
			return nil, fmt.Errorf("fixture product %d: id and storeId are required", i)
		}

		price := decimal.Zero
		if p.Price != "" {
			parsed, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, fmt.Errorf("fixture product %s: parsing price: %w", p.ID, err)
			}
			price = parsed
		}

		fixtures.Products = append(fixtures.Products, model.Product{
			ID:       p.ID,
			StoreID:  p.StoreID,
			Name:     p.Name,
			Price:    price,
			ImageURL: p.ImageURL,
		})
	}

	return fixtures, nil
}
