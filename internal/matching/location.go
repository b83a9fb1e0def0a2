package matching

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const earthRadiusKm = 6371.0

// NormalizePlace folds case and strips diacritics so "Évora" and "evora" compare equal.
func NormalizePlace(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Transformers and casers keep state, so they are built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// SamePlace reports whether two non-empty place names match after normalization.
func SamePlace(a, b string) bool {
	na, nb := NormalizePlace(a), NormalizePlace(b)
	return na != "" && na == nb
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// TypologyRooms parses the room count out of a typology code ("T2", "t3+1", "V4").
// ok is false when no number is present.
func TypologyRooms(code string) (rooms int, ok bool) {
	digits := 0
	for _, r := range strings.TrimSpace(code) {
		if r >= '0' && r <= '9' {
			rooms = rooms*10 + int(r-'0')
			digits++
			continue
		}
		if digits > 0 {
			break
		}
	}
	return rooms, digits > 0
}
