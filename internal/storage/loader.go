package storage

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

// LoadListingsFromFile reads a JSON array of listings.
func LoadListingsFromFile(path string) ([]domain.Listing, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listings file: %w", err)
	}

	var listings []domain.Listing
	if err := json.Unmarshal(b, &listings); err != nil {
		return nil, fmt.Errorf("unmarshal listings: %w", err)
	}
	return listings, nil
}
