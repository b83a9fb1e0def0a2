package matching

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

// Confidence shares per input group.
const (
	confidenceListing  = 0.5
	confidenceCriteria = 0.2
	confidenceBehavior = 0.15
	confidenceTemporal = 0.15
)

const fallbackReason = "limited data: neutral score"

// Engine owns the active weight configuration and scores single listings.
// Weights may be swapped while other goroutines score.
type Engine struct {
	mu      sync.RWMutex
	weights domain.WeightConfig
	now     func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now, which drives recency and days-on-market derivation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(w domain.WeightConfig, opts ...Option) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{weights: w, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewDefaultEngine creates an engine with DefaultWeights.
func NewDefaultEngine(opts ...Option) *Engine {
	e, _ := NewEngine(DefaultWeights(), opts...)
	return e
}

// CalculateScore computes the three sub-scores and their weighted combination.
// behavior and temporal are optional.
func (e *Engine) CalculateScore(
	listing domain.Listing,
	criteria domain.SearchCriteria,
	behavior *domain.UserBehavior,
	temporal *domain.TemporalFactors,
) domain.ScoringResult {
	w := e.Weights()
	now := e.now()

	compat, compatReasons := compatibilityScore(listing, criteria)
	beh, behReasons := behaviorScore(behavior, now)
	temp, tempReasons := temporalScore(listing, temporal, now)

	components := domain.ScoreComponents{
		Compatibility: clamp(compat, 0, 100),
		Behavior:      clamp(beh, 0, 100),
		Temporal:      clamp(temp, 0, 100),
	}
	final := math.Round(clamp(components.Weighted(w), 0, 100)*10) / 10 // 0.1 precision

	var all []reason
	all = append(all, weighReasons(compatReasons, w.Compatibility)...)
	all = append(all, weighReasons(behReasons, w.Behavior)...)
	all = append(all, weighReasons(tempReasons, w.Temporal)...)

	return domain.ScoringResult{
		ListingID:    listing.ID,
		Listing:      listing,
		Components:   components,
		Weights:      w,
		FinalScore:   final,
		Confidence:   confidence(listing, criteria, behavior, temporal),
		Reasons:      topReasons(all),
		CalculatedAt: now,
	}
}

// UpdateWeights installs a new configuration. Invalid weights are rejected and
// the previous configuration is kept.
func (e *Engine) UpdateWeights(w domain.WeightConfig) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("update weights: %w", err)
	}
	e.mu.Lock()
	e.weights = w
	e.mu.Unlock()
	return nil
}

func (e *Engine) Weights() domain.WeightConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}

func weighReasons(reasons []reason, weight float64) []reason {
	for i := range reasons {
		reasons[i].impact *= weight
	}
	return reasons
}

// topReasons orders reasons by contribution to the final score, strongest first.
func topReasons(reasons []reason) []string {
	if len(reasons) == 0 {
		return []string{fallbackReason}
	}
	sort.SliceStable(reasons, func(i, j int) bool { return reasons[i].impact > reasons[j].impact })
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, r.text)
	}
	return out
}

// confidence is the share of expected inputs that are actually present.
func confidence(l domain.Listing, c domain.SearchCriteria, b *domain.UserBehavior, t *domain.TemporalFactors) float64 {
	listingFields := []bool{
		l.District != "" || l.Municipality != "" || l.Parish != "",
		l.HasCoordinates(),
		l.Typology != "",
		l.AreaSQM > 0,
		l.Bedrooms > 0,
		l.Bathrooms > 0,
		l.Price > 0,
		!l.FirstSeenAt.IsZero(),
		!l.LastSeenAt.IsZero(),
		l.AvailabilityProbability != nil,
	}
	criteriaFields := []bool{
		c.HasNamedLocation() || c.HasRadius(),
		c.HasPriceRange(),
		c.Typology != "",
		c.HasCharacteristics(),
	}

	conf := confidenceListing*presentShare(listingFields) + confidenceCriteria*presentShare(criteriaFields)
	if b != nil {
		conf += confidenceBehavior
	}
	if t != nil {
		conf += confidenceTemporal
	}
	return math.Round(clamp01(conf)*100) / 100
}

func presentShare(fields []bool) float64 {
	n := 0
	for _, ok := range fields {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}
