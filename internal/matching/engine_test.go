package matching

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

func fixedClock() Option {
	return WithClock(func() time.Time { return testNow })
}

func fullListing() domain.Listing {
	return domain.Listing{
		ID:                      "pt-001",
		Title:                   "T2 in Arroios",
		District:                "Lisboa",
		Municipality:            "Lisboa",
		Parish:                  "Arroios",
		Latitude:                ptr(38.7296),
		Longitude:               ptr(-9.1359),
		Typology:                "T2",
		AreaSQM:                 85,
		Bedrooms:                2,
		Bathrooms:               1,
		Price:                   310000,
		PortalCount:             3,
		FirstSeenAt:             testNow.Add(-3 * 24 * time.Hour),
		LastSeenAt:              testNow.Add(-time.Hour),
		AvailabilityProbability: ptr(0.85),
	}
}

func fullCriteria() domain.SearchCriteria {
	return domain.SearchCriteria{
		Municipality: "Lisboa",
		PriceMin:     250000,
		PriceMax:     350000,
		Typology:     "T2",
		MinBedrooms:  2,
		MinAreaSQM:   70,
	}
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(domain.WeightConfig{Compatibility: 0.6, Behavior: 0.2, Temporal: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.6, e.Weights().Compatibility)

	_, err = NewEngine(domain.WeightConfig{Compatibility: 0.6, Behavior: 0.6})
	assert.True(t, errors.Is(err, domain.ErrInvalidWeights))

	assert.Equal(t, DefaultWeights(), NewDefaultEngine().Weights())
	assert.Equal(t, domain.WeightConfig{Compatibility: 0.4, Behavior: 0.3, Temporal: 0.3}, DefaultWeights())
}

func TestEngine_UpdateWeights(t *testing.T) {
	e := NewDefaultEngine()

	err := e.UpdateWeights(domain.WeightConfig{Compatibility: 0.5, Behavior: 0.3, Temporal: 0.3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidWeights))
	assert.Equal(t, DefaultWeights(), e.Weights(), "rejected update must keep previous weights")

	err = e.UpdateWeights(domain.WeightConfig{Compatibility: -0.1, Behavior: 0.6, Temporal: 0.5})
	require.Error(t, err)
	assert.Equal(t, DefaultWeights(), e.Weights())

	next := domain.WeightConfig{Compatibility: 0.5, Behavior: 0.25, Temporal: 0.25}
	require.NoError(t, e.UpdateWeights(next))
	assert.Equal(t, next, e.Weights())
	assert.InDelta(t, 1.0, e.Weights().Sum(), domain.WeightSumTolerance)
}

func TestEngine_CalculateScore_WeightedCombination(t *testing.T) {
	e := NewDefaultEngine(fixedClock())

	res := e.CalculateScore(fullListing(), fullCriteria(), nil, nil)

	want := res.Components.Compatibility*0.4 + res.Components.Behavior*0.3 + res.Components.Temporal*0.3
	assert.InDelta(t, want, res.FinalScore, 0.05)
	assert.Equal(t, 50.0, res.Components.Behavior)
	assert.InDelta(t, 100, res.Components.Compatibility, 1e-9)
	assert.Equal(t, "pt-001", res.ListingID)
	assert.Equal(t, DefaultWeights(), res.Weights)
	assert.Equal(t, testNow, res.CalculatedAt)
	assert.NotEmpty(t, res.Reasons)
}

func TestEngine_CalculateScore_Idempotent(t *testing.T) {
	e := NewDefaultEngine(fixedClock())
	b := &domain.UserBehavior{Views: 2, Saved: true}
	tf := &domain.TemporalFactors{DaysOnMarket: 40, AvailabilityProbability: 0.7}

	first := e.CalculateScore(fullListing(), fullCriteria(), b, tf)
	second := e.CalculateScore(fullListing(), fullCriteria(), b, tf)

	assert.Equal(t, first.FinalScore, second.FinalScore)
	assert.Equal(t, first.Components, second.Components)
	assert.Equal(t, first.Reasons, second.Reasons)
}

func TestEngine_CalculateScore_Confidence(t *testing.T) {
	e := NewDefaultEngine(fixedClock())

	sparse := e.CalculateScore(domain.Listing{ID: "x"}, domain.SearchCriteria{}, nil, nil)
	assert.Less(t, sparse.Confidence, 0.7)
	assert.GreaterOrEqual(t, sparse.Confidence, 0.0)
	assert.NotEmpty(t, sparse.Reasons)

	rich := e.CalculateScore(fullListing(), fullCriteria(),
		&domain.UserBehavior{Views: 1}, &domain.TemporalFactors{DaysOnMarket: 3, AvailabilityProbability: 0.8})
	assert.InDelta(t, 1.0, rich.Confidence, 1e-9)
	assert.Greater(t, rich.Confidence, sparse.Confidence)
}

func TestEngine_CalculateScore_Reasons(t *testing.T) {
	e := NewDefaultEngine(fixedClock())

	res := e.CalculateScore(fullListing(), fullCriteria(),
		&domain.UserBehavior{Views: 3, Contacted: true},
		&domain.TemporalFactors{IsNewListing: true, AvailabilityProbability: 0.9, RecentPriceDropPct: 5})

	assert.Contains(t, res.Reasons, "location: strong match (Lisboa)")
	assert.Contains(t, res.Reasons, "price: strong match (within budget)")
	assert.Contains(t, res.Reasons, "viewed 3 times")
	assert.Contains(t, res.Reasons, "user contacted the advertiser")
	assert.Contains(t, res.Reasons, "new listing")
	assert.Contains(t, res.Reasons, "price dropped 5% recently")
}

func TestEngine_CalculateScore_BehaviorScenarios(t *testing.T) {
	e := NewDefaultEngine(fixedClock())

	none := e.CalculateScore(fullListing(), domain.SearchCriteria{}, nil, nil)
	assert.Equal(t, 50.0, none.Components.Behavior)

	views := e.CalculateScore(fullListing(), domain.SearchCriteria{}, &domain.UserBehavior{Views: 3}, nil)
	assert.Equal(t, 30.0, views.Components.Behavior)
}

func TestEngine_CalculateScore_ScoreBounds(t *testing.T) {
	e := NewDefaultEngine(fixedClock())
	listings := []domain.Listing{
		{},
		fullListing(),
		{ID: "cheap", Price: 1, Typology: "T9"},
		{ID: "odd", Price: 1e9, AvailabilityProbability: ptr(7)},
	}
	for _, l := range listings {
		res := e.CalculateScore(l, fullCriteria(), &domain.UserBehavior{Views: 100, ViewDurationSec: 1e6}, &domain.TemporalFactors{DaysOnMarket: 5000, RecentPriceDropPct: 90, PriceChanges: 40})
		assert.GreaterOrEqual(t, res.FinalScore, 0.0)
		assert.LessOrEqual(t, res.FinalScore, 100.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}

func TestLoadWeightsFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "weights.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"compatibility":0.5,"behavior":0.2,"temporal":0.3}`), 0o600))
	w, err := LoadWeightsFromFile(good)
	require.NoError(t, err)
	assert.Equal(t, domain.WeightConfig{Compatibility: 0.5, Behavior: 0.2, Temporal: 0.3}, w)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"compatibility":0.9,"behavior":0.9,"temporal":0.3}`), 0o600))
	w, err = LoadWeightsFromFile(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidWeights))
	assert.Equal(t, DefaultWeights(), w)

	w, err = LoadWeightsFromFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, DefaultWeights(), w)
}
