package matching

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

// DefaultWeights returns the baseline split between compatibility, behavior and temporal scores.
func DefaultWeights() domain.WeightConfig {
	return domain.WeightConfig{
		Compatibility: 0.4,
		Behavior:      0.3,
		Temporal:      0.3,
	}
}

// LoadWeightsFromFile loads weights from a JSON file, falling back to defaults on read or validation errors.
func LoadWeightsFromFile(path string) (domain.WeightConfig, error) {
	w := DefaultWeights()
	b, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read weights file: %w", err)
	}
	var loaded domain.WeightConfig
	if err := json.Unmarshal(b, &loaded); err != nil {
		return w, fmt.Errorf("unmarshal weights: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return w, fmt.Errorf("weights file %s: %w", path, err)
	}
	return loaded, nil
}
