package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"inventory-risk-radar/backend/internal/store"
)

// Service manages catalog persistence and ingest.
type Service struct {
	db *store.Database
}

func NewService(db *store.Database) *Service {
	return &Service{db: db}
}

// catalogID accepts both JSON strings and numbers so hand-edited files can
// use either form for the id field.
type catalogID string

func (c *catalogID) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*c = catalogID(strings.TrimSpace(asString))
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		*c = catalogID(asNumber.String())
		return nil
	}
	return fmt.Errorf("unsupported id value %s", string(data))
}

type productEntry struct {
	ID             catalogID `json:"id"`
	SKU            catalogID `json:"sku"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Image          string    `json:"image"`
	Description    string    `json:"description"`
	StockAmount    float64   `json:"stock_amount"`
	WeeklySales    float64   `json:"weekly_sales"`
	ProductAgeDays float64   `json:"product_age_days"`
	Rating         float64   `json:"rating"`
	ReturnRate     float64   `json:"return_rate"`
}

// ImportFiles ingests the provided JSON catalog files and replaces the stored
// catalog with the merged result. Entries are merged by SKU with later files
// winning. Returns the number of distinct products stored.
func (s *Service) ImportFiles(paths []string) (int, error) {
	all := make([]store.Product, 0)
	for _, path := range paths {
		products, err := parseFile(path)
		if err != nil {
			return 0, err
		}
		all = append(all, products...)
	}
	return s.Replace(all)
}

// ImportFile ingests a single catalog file.
func (s *Service) ImportFile(path string) (int, error) {
	return s.ImportFiles([]string{path})
}

// Replace swaps the stored catalog with the provided products. Duplicate SKUs
// collapse to the last occurrence while keeping first-seen order. Returns the
// number of distinct products stored.
func (s *Service) Replace(products []store.Product) (int, error) {
	merged := make([]store.Product, 0, len(products))
	position := make(map[string]int, len(products))
	for _, product := range products {
		if idx, ok := position[product.SKU]; ok {
			merged[idx] = product
			continue
		}
		position[product.SKU] = len(merged)
		merged = append(merged, product)
	}
	if err := s.db.ReplaceProducts(merged); err != nil {
		return 0, err
	}
	return len(merged), nil
}

// Count returns the number of stored products.
func (s *Service) Count() int {
	if s == nil {
		return 0
	}
	count, err := s.db.CountProducts()
	if err != nil {
		return 0
	}
	return int(count)
}

func parseFile(path string) ([]store.Product, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("catalog path is empty")
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	return Parse(payload, path)
}

// Parse decodes a catalog document. Both the bare array form and the API
// envelope {"products": [...]} are accepted.
func Parse(payload []byte, source string) ([]store.Product, error) {
	var entries []productEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		var wrapped struct {
			Products []productEntry `json:"products"`
		}
		if err2 := json.Unmarshal(payload, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", source, err)
		}
		entries = wrapped.Products
	}

	products := make([]store.Product, 0, len(entries))
	for i, entry := range entries {
		sku := strings.TrimSpace(string(entry.SKU))
		if sku == "" {
			sku = strings.TrimSpace(string(entry.ID))
		}
		if sku == "" {
			return nil, fmt.Errorf("catalog %s: entry %d has no sku or id", source, i)
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog %s: entry %q has no name", source, sku)
		}
		products = append(products, store.Product{
			SKU:            sku,
			Name:           name,
			Category:       strings.TrimSpace(entry.Category),
			Image:          strings.TrimSpace(entry.Image),
			Description:    strings.TrimSpace(entry.Description),
			StockAmount:    entry.StockAmount,
			WeeklySales:    entry.WeeklySales,
			ProductAgeDays: entry.ProductAgeDays,
			Rating:         entry.Rating,
			ReturnRate:     entry.ReturnRate,
		})
	}
	return products, nil
}
