package domain

import (
	"errors"
	"fmt"
	"math"
)

// WeightSumTolerance is the allowed deviation of a weight sum from 1.0.
const WeightSumTolerance = 1e-3

// ErrInvalidWeights is returned when a weight configuration is negative or does not sum to 1.0.
var ErrInvalidWeights = errors.New("invalid weights")

// WeightConfig defines how the three sub-scores contribute to the final score.
type WeightConfig struct {
	Compatibility float64 `json:"compatibility" koanf:"compatibility" validate:"gte=0,lte=1"`
	Behavior      float64 `json:"behavior" koanf:"behavior" validate:"gte=0,lte=1"`
	Temporal      float64 `json:"temporal" koanf:"temporal" validate:"gte=0,lte=1"`
}

func (w WeightConfig) Sum() float64 {
	return w.Compatibility + w.Behavior + w.Temporal
}

// Validate checks that weights are non-negative and sum to 1.0 within WeightSumTolerance.
func (w WeightConfig) Validate() error {
	if w.Compatibility < 0 || w.Behavior < 0 || w.Temporal < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	if math.IsNaN(w.Sum()) {
		return fmt.Errorf("%w: weights must be numbers", ErrInvalidWeights)
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("%w: weights must sum to 1.0, got %.3f", ErrInvalidWeights, sum)
	}
	return nil
}

// Normalize scales weights to sum to 1.0. All-zero weights become equal shares.
func (w WeightConfig) Normalize() WeightConfig {
	sum := w.Sum()
	if sum <= 0 {
		return WeightConfig{Compatibility: 1.0 / 3, Behavior: 1.0 / 3, Temporal: 1.0 / 3}
	}
	return WeightConfig{
		Compatibility: w.Compatibility / sum,
		Behavior:      w.Behavior / sum,
		Temporal:      w.Temporal / sum,
	}
}
