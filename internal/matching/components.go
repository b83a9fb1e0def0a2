package matching

import (
	"fmt"
	"math"
	"time"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

const (
	neutralScore = 50.0

	// Compatibility shares, normalized over the criteria actually supplied.
	shareLocation        = 0.35
	sharePrice           = 0.30
	shareTypology        = 0.20
	shareCharacteristics = 0.15

	// Neutral fit used when the listing lacks the field a criterion checks.
	unknownFit = 0.5

	typologyAdjacentFit = 0.7
	typologyMismatchFit = 0.4
	priceOvershootSlope = 2.0

	behaviorCap          = 30.0
	pointsPerView        = 10.0
	secondsPerPoint      = 10.0
	pointsPerInteraction = 10.0
	recencyBonusMax      = 10.0
	recencyWindow        = 24 * time.Hour

	newListingDays    = 7
	newListingBonus   = 20.0
	staleAfterDays    = 30
	stalePenaltyMax   = 30.0
	staleDaysPerPoint = 4.0
	availabilityBonus = 15.0
	priceDropBonusMax = 15.0
	priceChangeBonus  = 2.0
	priceChangeMax    = 6.0
)

// reason is a human-readable explanation with its contribution in component points.
type reason struct {
	text   string
	impact float64
}

type fit struct {
	label  string
	share  float64
	value  float64
	detail string
}

// compatibilityScore measures how well a listing matches explicit search criteria (0..100).
func compatibilityScore(l domain.Listing, c domain.SearchCriteria) (float64, []reason) {
	var fits []fit

	if c.HasNamedLocation() || c.HasRadius() {
		v, detail := locationFit(l, c)
		fits = append(fits, fit{"location", shareLocation, v, detail})
	}
	if c.HasPriceRange() {
		v, detail := priceFit(l.Price, c.PriceMin, c.PriceMax)
		fits = append(fits, fit{"price", sharePrice, v, detail})
	}
	if c.Typology != "" {
		v, detail := typologyFit(l.Typology, c.Typology)
		fits = append(fits, fit{"typology", shareTypology, v, detail})
	}
	if c.HasCharacteristics() {
		v, detail := characteristicsFit(l, c)
		fits = append(fits, fit{"characteristics", shareCharacteristics, v, detail})
	}

	// An absent criterion cannot be violated.
	if len(fits) == 0 {
		return neutralScore, nil
	}

	var sumShare, sum float64
	for _, f := range fits {
		sumShare += f.share
		sum += f.share * f.value
	}

	reasons := make([]reason, 0, len(fits))
	for _, f := range fits {
		text := reasonMessage(f.label, f.value)
		if f.detail != "" {
			text += " (" + f.detail + ")"
		}
		reasons = append(reasons, reason{text: text, impact: 100 * f.share * f.value / sumShare})
	}
	return clamp(100*sum/sumShare, 0, 100), reasons
}

func locationFit(l domain.Listing, c domain.SearchCriteria) (float64, string) {
	best := -1.0
	detail := ""

	if c.HasNamedLocation() {
		v, d := namedLocationFit(l, c)
		best, detail = v, d
	}
	if c.HasRadius() && l.HasCoordinates() {
		d := HaversineKm(*c.Latitude, *c.Longitude, *l.Latitude, *l.Longitude)
		var v float64
		if d <= c.RadiusKm {
			v = 1 - 0.5*d/c.RadiusKm
		} else {
			v = math.Max(0, 0.5*(1-(d-c.RadiusKm)/c.RadiusKm))
		}
		if v > best {
			best = v
			detail = fmt.Sprintf("%.1f km from search point", d)
		}
	}
	if best < 0 {
		return unknownFit, "location unknown"
	}
	return best, detail
}

func namedLocationFit(l domain.Listing, c domain.SearchCriteria) (float64, string) {
	if l.District == "" && l.Municipality == "" && l.Parish == "" {
		return unknownFit, "location unknown"
	}
	switch {
	case c.Parish != "" && SamePlace(c.Parish, l.Parish):
		return 1, l.Parish
	case c.Municipality != "" && SamePlace(c.Municipality, l.Municipality):
		if c.Parish != "" {
			return 0.8, "same municipality, different parish"
		}
		return 1, l.Municipality
	case c.District != "" && SamePlace(c.District, l.District):
		if c.Municipality != "" || c.Parish != "" {
			return 0.5, "same district only"
		}
		return 1, l.District
	default:
		return 0, "outside requested area"
	}
}

func priceFit(price, lo, hi float64) (float64, string) {
	if price <= 0 {
		return unknownFit, "price unknown"
	}
	switch {
	case lo > 0 && price < lo:
		over := (lo - price) / lo
		return math.Max(0, 1-priceOvershootSlope*over), fmt.Sprintf("%.0f%% below minimum", over*100)
	case hi > 0 && price > hi:
		over := (price - hi) / hi
		return math.Max(0, 1-priceOvershootSlope*over), fmt.Sprintf("%.0f%% above budget", over*100)
	default:
		return 1, "within budget"
	}
}

func typologyFit(have, want string) (float64, string) {
	if have == "" {
		return unknownFit, "typology unknown"
	}
	if NormalizePlace(have) == NormalizePlace(want) {
		return 1, have
	}
	hr, okH := TypologyRooms(have)
	wr, okW := TypologyRooms(want)
	if okH && okW && absInt(hr-wr) == 1 {
		return typologyAdjacentFit, have + " instead of " + want
	}
	return typologyMismatchFit, have + " instead of " + want
}

func characteristicsFit(l domain.Listing, c domain.SearchCriteria) (float64, string) {
	var sum float64
	var n int
	detail := ""

	if c.MinBedrooms > 0 {
		n++
		if l.Bedrooms <= 0 {
			sum += unknownFit
		} else {
			sum += math.Min(1, float64(l.Bedrooms)/float64(c.MinBedrooms))
			detail = fmt.Sprintf("%d bedrooms", l.Bedrooms)
		}
	}
	if c.MinAreaSQM > 0 {
		n++
		if l.AreaSQM <= 0 {
			sum += unknownFit
		} else {
			sum += math.Min(1, l.AreaSQM/c.MinAreaSQM)
			if detail != "" {
				detail += ", "
			}
			detail += fmt.Sprintf("%.0f m²", l.AreaSQM)
		}
	}
	return sum / float64(n), detail
}

// behaviorScore turns engagement into a score. Without a signal it is exactly neutral.
func behaviorScore(b *domain.UserBehavior, now time.Time) (float64, []reason) {
	if b == nil {
		return neutralScore, nil
	}

	var reasons []reason

	views := math.Min(behaviorCap, pointsPerView*float64(max(b.Views, 0)))
	if views > 0 {
		reasons = append(reasons, reason{fmt.Sprintf("viewed %d times", b.Views), views})
	}

	duration := math.Min(behaviorCap, math.Max(0, b.ViewDurationSec)/secondsPerPoint)
	if duration >= 1 {
		reasons = append(reasons, reason{fmt.Sprintf("%.0f seconds spent on the listing", b.ViewDurationSec), duration})
	}

	interactions := 0.0
	for _, flag := range []struct {
		set  bool
		text string
	}{
		{b.Saved, "saved by the user"},
		{b.Contacted, "user contacted the advertiser"},
		{b.Shared, "shared by the user"},
	} {
		if !flag.set {
			continue
		}
		interactions += pointsPerInteraction
		reasons = append(reasons, reason{flag.text, pointsPerInteraction})
	}
	interactions = math.Min(behaviorCap, interactions)

	recency := 0.0
	if !b.LastViewedAt.IsZero() {
		age := now.Sub(b.LastViewedAt)
		if age < 0 {
			age = 0
		}
		if age < recencyWindow {
			recency = recencyBonusMax * (1 - float64(age)/float64(recencyWindow))
			reasons = append(reasons, reason{"viewed within the last day", recency})
		}
	}

	return clamp(views+duration+interactions+recency, 0, 100), reasons
}

// temporalScore rates time-sensitivity: freshness, availability and price movement.
func temporalScore(l domain.Listing, t *domain.TemporalFactors, now time.Time) (float64, []reason) {
	f := temporalInputs(l, t, now)
	score := neutralScore
	var reasons []reason

	switch {
	case f.isNew || (f.daysKnown && f.days <= newListingDays):
		score += newListingBonus
		reasons = append(reasons, reason{"new listing", newListingBonus})
	case f.daysKnown && f.days > staleAfterDays:
		// High availability partially offsets the staleness penalty.
		penalty := math.Min(stalePenaltyMax, float64(f.days-staleAfterDays)/staleDaysPerPoint) * (1 - 0.5*f.availability)
		score -= penalty
		reasons = append(reasons, reason{fmt.Sprintf("on the market for %d days", f.days), -penalty})
	}

	avail := availabilityBonus * f.availability
	score += avail
	switch {
	case f.availability >= 0.8:
		reasons = append(reasons, reason{fmt.Sprintf("likely still available (%.0f%%)", f.availability*100), avail})
	case f.availability < 0.3:
		reasons = append(reasons, reason{fmt.Sprintf("may no longer be available (%.0f%%)", f.availability*100), avail})
	}

	if f.priceDropPct > 0 {
		drop := math.Min(priceDropBonusMax, f.priceDropPct)
		score += drop
		reasons = append(reasons, reason{fmt.Sprintf("price dropped %.0f%% recently", f.priceDropPct), drop})
	}
	if f.priceChanges > 0 {
		changes := math.Min(priceChangeMax, priceChangeBonus*float64(f.priceChanges))
		score += changes
		reasons = append(reasons, reason{fmt.Sprintf("price changed %d times", f.priceChanges), changes})
	}

	return clamp(score, 0, 100), reasons
}

type temporalFacts struct {
	days         int
	daysKnown    bool
	isNew        bool
	availability float64
	priceDropPct float64
	priceChanges int
}

// temporalInputs uses the supplied factors or derives them from the listing itself.
func temporalInputs(l domain.Listing, t *domain.TemporalFactors, now time.Time) temporalFacts {
	if t != nil {
		return temporalFacts{
			days:         max(t.DaysOnMarket, 0),
			daysKnown:    true,
			isNew:        t.IsNewListing,
			availability: clamp01(t.AvailabilityProbability),
			priceDropPct: math.Max(0, t.RecentPriceDropPct),
			priceChanges: max(t.PriceChanges, 0),
		}
	}

	f := temporalFacts{availability: unknownFit}
	if l.AvailabilityProbability != nil {
		f.availability = clamp01(*l.AvailabilityProbability)
	}
	if !l.FirstSeenAt.IsZero() {
		f.days = max(int(now.Sub(l.FirstSeenAt).Hours()/24), 0)
		f.daysKnown = true
		f.isNew = f.days <= newListingDays
	}
	return f
}

func reasonMessage(label string, v float64) string {
	switch {
	case v >= 0.8:
		return label + ": strong match"
	case v >= 0.6:
		return label + ": good"
	case v >= 0.4:
		return label + ": mixed"
	default:
		return label + ": weak"
	}
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
