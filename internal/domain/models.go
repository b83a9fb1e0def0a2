package domain

import "time"

// Listing is a normalized real-estate record. Zero values mean "unknown".
type Listing struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	District     string   `json:"district,omitempty"`
	Municipality string   `json:"municipality,omitempty"`
	Parish       string   `json:"parish,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	// Typology is the room-count code, e.g. "T2".
	Typology                string    `json:"typology,omitempty"`
	AreaSQM                 float64   `json:"area_sqm,omitempty"`
	Bedrooms                int       `json:"bedrooms,omitempty"`
	Bathrooms               int       `json:"bathrooms,omitempty"`
	Price                   float64   `json:"price,omitempty"`
	PortalCount             int       `json:"portal_count,omitempty"`
	FirstSeenAt             time.Time `json:"first_seen_at"`
	LastSeenAt              time.Time `json:"last_seen_at"`
	AvailabilityProbability *float64  `json:"availability_probability,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type SearchCriteria struct {
	District     string   `json:"district,omitempty"`
	Municipality string   `json:"municipality,omitempty"`
	Parish       string   `json:"parish,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusKm     float64  `json:"radius_km,omitempty" validate:"gte=0"`
	PriceMin     float64  `json:"price_min,omitempty" validate:"gte=0"`
	PriceMax     float64  `json:"price_max,omitempty" validate:"gte=0"`
	Typology     string   `json:"typology,omitempty"`
	MinBedrooms  int      `json:"min_bedrooms,omitempty" validate:"gte=0"`
	MinAreaSQM   float64  `json:"min_area_sqm,omitempty" validate:"gte=0"`
}

// HasNamedLocation reports whether a district, municipality or parish was requested.
func (c SearchCriteria) HasNamedLocation() bool {
	return c.District != "" || c.Municipality != "" || c.Parish != ""
}

// HasRadius reports whether a lat/lon/radius search was requested.
func (c SearchCriteria) HasRadius() bool {
	return c.Latitude != nil && c.Longitude != nil && c.RadiusKm > 0
}

func (c SearchCriteria) HasPriceRange() bool {
	return c.PriceMin > 0 || c.PriceMax > 0
}

func (c SearchCriteria) HasCharacteristics() bool {
	return c.MinBedrooms > 0 || c.MinAreaSQM > 0
}

// IsEmpty reports whether no criterion at all was supplied.
func (c SearchCriteria) IsEmpty() bool {
	return !c.HasNamedLocation() && !c.HasRadius() && !c.HasPriceRange() &&
		c.Typology == "" && !c.HasCharacteristics()
}

// UserBehavior is the interaction signal of one user with one listing.
type UserBehavior struct {
	Views           int       `json:"views" validate:"gte=0"`
	ViewDurationSec float64   `json:"view_duration_sec" validate:"gte=0"`
	Saved           bool      `json:"saved"`
	Contacted       bool      `json:"contacted"`
	Shared          bool      `json:"shared"`
	LastViewedAt    time.Time `json:"last_viewed_at,omitempty"`
}

type TemporalFactors struct {
	DaysOnMarket            int     `json:"days_on_market" validate:"gte=0"`
	IsNewListing            bool    `json:"is_new_listing"`
	AvailabilityProbability float64 `json:"availability_probability" validate:"gte=0,lte=1"`
	RecentPriceDropPct      float64 `json:"recent_price_drop_pct" validate:"gte=0"`
	PriceChanges            int     `json:"price_changes" validate:"gte=0"`
}

// ScoreComponents holds the three sub-scores, each in [0,100].
type ScoreComponents struct {
	Compatibility float64 `json:"compatibility"`
	Behavior      float64 `json:"behavior"`
	Temporal      float64 `json:"temporal"`
}

// Weighted combines the components with the given weights.
func (c ScoreComponents) Weighted(w WeightConfig) float64 {
	return c.Compatibility*w.Compatibility + c.Behavior*w.Behavior + c.Temporal*w.Temporal
}

// ScoringResult is created fresh on every scoring call and never mutated.
type ScoringResult struct {
	ListingID    string          `json:"listing_id"`
	Listing      Listing         `json:"listing"`
	Components   ScoreComponents `json:"components"`
	Weights      WeightConfig    `json:"weights"`
	FinalScore   float64         `json:"final_score"`
	Confidence   float64         `json:"confidence"`
	Reasons      []string        `json:"reasons"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

type RankedListing struct {
	ScoringResult
	Rank int `json:"rank"`
}

type RankingResult struct {
	Listings     []RankedListing `json:"listings"`
	Total        int             `json:"total"`
	Page         int             `json:"page"`
	AverageScore float64         `json:"average_score"`
	TopScore     float64         `json:"top_score"`
}
