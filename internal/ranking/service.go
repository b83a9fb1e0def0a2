// Package ranking turns batches of listings into ordered, paginated and diversity-aware result sets.
package ranking

import (
	"math"
	"sort"
	"sync"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

// Score range boundaries used by GroupByScoreRange.
const (
	ExcellentThreshold = 80.0
	GoodThreshold      = 60.0
	FairThreshold      = 40.0

	// TieMargin is the score difference below which CompareProperties declares a tie.
	TieMargin = 1.0

	DefaultTopN = 10
)

// Scorer is the scoring strategy the service delegates to. *matching.Engine implements it.
type Scorer interface {
	CalculateScore(listing domain.Listing, criteria domain.SearchCriteria, behavior *domain.UserBehavior, temporal *domain.TemporalFactors) domain.ScoringResult
	Weights() domain.WeightConfig
	UpdateWeights(w domain.WeightConfig) error
}

// RankOptions controls filtering and pagination. Zero values disable each option.
type RankOptions struct {
	Limit    int     `json:"limit" validate:"gte=0"`
	Offset   int     `json:"offset" validate:"gte=0"`
	MinScore float64 `json:"min_score" validate:"gte=0,lte=100"`
}

type ScoreGroups struct {
	Excellent []domain.RankedListing `json:"excellent"`
	Good      []domain.RankedListing `json:"good"`
	Fair      []domain.RankedListing `json:"fair"`
	Poor      []domain.RankedListing `json:"poor"`
}

// Len returns the total number of listings across all buckets.
func (g ScoreGroups) Len() int {
	return len(g.Excellent) + len(g.Good) + len(g.Fair) + len(g.Poor)
}

type Winner string

const (
	WinnerA   Winner = "a"
	WinnerB   Winner = "b"
	WinnerTie Winner = "tie"
)

type Comparison struct {
	ResultA         domain.ScoringResult `json:"result_a"`
	ResultB         domain.ScoringResult `json:"result_b"`
	Winner          Winner               `json:"winner"`
	ScoreDifference float64              `json:"score_difference"`
}

// Service ranks listings with a swappable Scorer.
type Service struct {
	mu        sync.RWMutex
	scorer    Scorer
	diversity DiversityConfig
}

func NewService(scorer Scorer, diversity DiversityConfig) *Service {
	return &Service{scorer: scorer, diversity: diversity.withDefaults()}
}

// SetScoringEngine swaps the scorer. Calls already in progress keep the previous one.
func (s *Service) SetScoringEngine(scorer Scorer) {
	s.mu.Lock()
	s.scorer = scorer
	s.mu.Unlock()
}

func (s *Service) ScoringEngine() Scorer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scorer
}

// Weights reports the weights of the current scorer.
func (s *Service) Weights() domain.WeightConfig {
	return s.ScoringEngine().Weights()
}

// UpdateWeights installs w on the current scorer.
func (s *Service) UpdateWeights(w domain.WeightConfig) error {
	return s.ScoringEngine().UpdateWeights(w)
}

// RankProperties scores every listing, sorts descending (input order breaks ties),
// drops listings below MinScore, assigns ranks and paginates.
// Total is always the number of input listings.
func (s *Service) RankProperties(
	listings []domain.Listing,
	criteria domain.SearchCriteria,
	behaviors map[string]domain.UserBehavior,
	temporals map[string]domain.TemporalFactors,
	opts RankOptions,
) domain.RankingResult {
	res := domain.RankingResult{Total: len(listings), Page: 1, Listings: []domain.RankedListing{}}
	if len(listings) == 0 {
		return res
	}

	ranked := s.scoreAll(listings, criteria, behaviors, temporals)

	if opts.MinScore > 0 {
		kept := ranked[:0]
		for _, r := range ranked {
			if r.FinalScore >= opts.MinScore {
				kept = append(kept, r)
			}
		}
		ranked = kept
	}
	assignRanks(ranked)

	offset := max(opts.Offset, 0)
	if offset > len(ranked) {
		offset = len(ranked)
	}
	end := len(ranked)
	if opts.Limit > 0 {
		end = min(offset+opts.Limit, len(ranked))
		res.Page = offset/opts.Limit + 1
	}
	page := ranked[offset:end]

	res.Listings = page
	res.AverageScore, res.TopScore = aggregate(page)
	return res
}

// TopProperties returns the topN best listings without behavior or temporal input.
func (s *Service) TopProperties(listings []domain.Listing, criteria domain.SearchCriteria, topN int) []domain.RankedListing {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return s.RankProperties(listings, criteria, nil, nil, RankOptions{Limit: topN}).Listings
}

// FilterByScoreThreshold returns listings scoring at least threshold.
func (s *Service) FilterByScoreThreshold(listings []domain.Listing, criteria domain.SearchCriteria, threshold float64) []domain.RankedListing {
	ranked := s.scoreAll(listings, criteria, nil, nil)
	out := make([]domain.RankedListing, 0, len(ranked))
	for _, r := range ranked {
		if r.FinalScore >= threshold {
			out = append(out, r)
		}
	}
	assignRanks(out)
	return out
}

// GroupByScoreRange partitions listings into excellent, good, fair and poor buckets.
func (s *Service) GroupByScoreRange(listings []domain.Listing, criteria domain.SearchCriteria) ScoreGroups {
	groups := ScoreGroups{
		Excellent: []domain.RankedListing{},
		Good:      []domain.RankedListing{},
		Fair:      []domain.RankedListing{},
		Poor:      []domain.RankedListing{},
	}
	ranked := s.scoreAll(listings, criteria, nil, nil)
	assignRanks(ranked)
	for _, r := range ranked {
		switch {
		case r.FinalScore >= ExcellentThreshold:
			groups.Excellent = append(groups.Excellent, r)
		case r.FinalScore >= GoodThreshold:
			groups.Good = append(groups.Good, r)
		case r.FinalScore >= FairThreshold:
			groups.Fair = append(groups.Fair, r)
		default:
			groups.Poor = append(groups.Poor, r)
		}
	}
	return groups
}

// CompareProperties scores both listings under the same criteria.
func (s *Service) CompareProperties(a, b domain.Listing, criteria domain.SearchCriteria) Comparison {
	scorer := s.ScoringEngine()
	ra := scorer.CalculateScore(a, criteria, nil, nil)
	rb := scorer.CalculateScore(b, criteria, nil, nil)

	diff := math.Abs(ra.FinalScore - rb.FinalScore)
	winner := WinnerTie
	switch {
	case diff < TieMargin:
	case ra.FinalScore > rb.FinalScore:
		winner = WinnerA
	default:
		winner = WinnerB
	}
	return Comparison{ResultA: ra, ResultB: rb, Winner: winner, ScoreDifference: diff}
}

// scoreAll scores listings with a single scorer snapshot and sorts them, stable on input order.
func (s *Service) scoreAll(
	listings []domain.Listing,
	criteria domain.SearchCriteria,
	behaviors map[string]domain.UserBehavior,
	temporals map[string]domain.TemporalFactors,
) []domain.RankedListing {
	scorer := s.ScoringEngine()
	out := make([]domain.RankedListing, 0, len(listings))
	for _, l := range listings {
		var b *domain.UserBehavior
		if v, ok := behaviors[l.ID]; ok {
			b = &v
		}
		var t *domain.TemporalFactors
		if v, ok := temporals[l.ID]; ok {
			t = &v
		}
		out = append(out, domain.RankedListing{ScoringResult: scorer.CalculateScore(l, criteria, b, t)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	return out
}

func assignRanks(ranked []domain.RankedListing) {
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
}

func aggregate(page []domain.RankedListing) (avg, top float64) {
	if len(page) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range page {
		sum += r.FinalScore
		top = math.Max(top, r.FinalScore)
	}
	return math.Round(sum/float64(len(page))*100) / 100, top
}
