package ranking

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
)

// DiversityConfig tunes the near-duplicate penalty of DiversifiedRanking.
type DiversityConfig struct {
	// DefaultFactor is used when the caller passes a factor <= 0.
	DefaultFactor float64 `json:"default_factor" koanf:"default_factor" validate:"gt=0,lte=1"`
	// PenaltyScale is the score penalty at factor 1.0 for a listing similar to the previous one.
	PenaltyScale float64 `json:"penalty_scale" koanf:"penalty_scale" validate:"gte=0,lte=100"`
	// PriceTolerance is the relative price gap under which two prices count as near-equal.
	PriceTolerance float64 `json:"price_tolerance" koanf:"price_tolerance" validate:"gte=0,lte=1"`
	// GeohashPrecision is the cell size used when listings have coordinates but no parish/municipality.
	GeohashPrecision uint `json:"geohash_precision" koanf:"geohash_precision" validate:"gte=1,lte=12"`
}

func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		DefaultFactor:    0.3,
		PenaltyScale:     50,
		PriceTolerance:   0.1,
		GeohashPrecision: 6,
	}
}

func (c DiversityConfig) withDefaults() DiversityConfig {
	d := DefaultDiversityConfig()
	if c.DefaultFactor <= 0 || c.DefaultFactor > 1 {
		c.DefaultFactor = d.DefaultFactor
	}
	if c.PenaltyScale <= 0 {
		c.PenaltyScale = d.PenaltyScale
	}
	if c.PriceTolerance <= 0 {
		c.PriceTolerance = d.PriceTolerance
	}
	if c.GeohashPrecision == 0 || c.GeohashPrecision > 12 {
		c.GeohashPrecision = d.GeohashPrecision
	}
	return c
}

// DiversifiedRanking ranks listings normally, then greedily re-orders them so that a listing
// similar to the one just placed is demoted by factor*PenaltyScale points. No listing is dropped.
func (s *Service) DiversifiedRanking(listings []domain.Listing, criteria domain.SearchCriteria, factor float64) []domain.RankedListing {
	ranked := s.RankProperties(listings, criteria, nil, nil, RankOptions{}).Listings
	if factor <= 0 {
		factor = s.diversity.DefaultFactor
	}
	factor = math.Min(factor, 1)
	return s.diversity.rerank(ranked, factor)
}

func (c DiversityConfig) rerank(ranked []domain.RankedListing, factor float64) []domain.RankedListing {
	n := len(ranked)
	if n <= 2 {
		return ranked
	}

	cells := make([]string, n)
	for i, r := range ranked {
		cells[i] = c.cell(r.Listing)
	}

	out := make([]domain.RankedListing, 0, n)
	used := make([]bool, n)
	last := -1
	penalty := factor * c.PenaltyScale

	for len(out) < n {
		best := -1
		bestScore := math.Inf(-1)
		for i, r := range ranked {
			if used[i] {
				continue
			}
			adjusted := r.FinalScore
			if last >= 0 && c.similar(ranked[i].Listing, ranked[last].Listing, cells[i], cells[last]) {
				adjusted -= penalty
			}
			// Strict comparison keeps the original order among equals.
			if adjusted > bestScore {
				best, bestScore = i, adjusted
			}
		}
		used[best] = true
		out = append(out, ranked[best])
		last = best
	}

	assignRanks(out)
	return out
}

// similar reports near-duplicates: same area, same typology and near-equal price.
func (c DiversityConfig) similar(a, b domain.Listing, cellA, cellB string) bool {
	if a.Typology == "" || matching.NormalizePlace(a.Typology) != matching.NormalizePlace(b.Typology) {
		return false
	}
	if !nearPrice(a.Price, b.Price, c.PriceTolerance) {
		return false
	}
	return sameArea(a, b, cellA, cellB)
}

func sameArea(a, b domain.Listing, cellA, cellB string) bool {
	if a.Parish != "" && b.Parish != "" {
		if a.Municipality != "" && b.Municipality != "" && !matching.SamePlace(a.Municipality, b.Municipality) {
			return false
		}
		return matching.SamePlace(a.Parish, b.Parish)
	}
	if a.Municipality != "" && b.Municipality != "" {
		return matching.SamePlace(a.Municipality, b.Municipality)
	}
	return cellA != "" && cellA == cellB
}

func (c DiversityConfig) cell(l domain.Listing) string {
	if !l.HasCoordinates() {
		return ""
	}
	return geohash.EncodeWithPrecision(*l.Latitude, *l.Longitude, c.GeohashPrecision)
}

func nearPrice(a, b, tolerance float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	return math.Abs(a-b)/math.Max(a, b) <= tolerance
}
