package httpapi

import (
	"errors"
	"net/http"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/metrics"
	"github.com/denisok6893-rgb/property-ranking/internal/ranking"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

// RankRequest is shared by the /rank endpoints; each reads the fields it needs.
// When Listings is absent the stored listings are ranked.
type RankRequest struct {
	Criteria  domain.SearchCriteria             `json:"criteria"`
	Listings  []domain.Listing                  `json:"listings,omitempty"`
	Behaviors map[string]domain.UserBehavior    `json:"behaviors,omitempty" validate:"omitempty,dive"`
	Temporals map[string]domain.TemporalFactors `json:"temporals,omitempty" validate:"omitempty,dive"`

	Limit     int     `json:"limit" validate:"gte=0,lte=200"`
	Offset    int     `json:"offset" validate:"gte=0"`
	MinScore  float64 `json:"min_score" validate:"gte=0,lte=100"`
	TopN      int     `json:"top_n" validate:"gte=0,lte=200"`
	Threshold float64 `json:"threshold" validate:"gte=0,lte=100"`
	// Factor is the diversity strength for /rank/diversified.
	Factor float64 `json:"factor" validate:"gte=0,lte=1"`
}

type RankedListResponse struct {
	Count    int                    `json:"count"`
	Listings []domain.RankedListing `json:"listings"`
}

// CompareRequest names each side by stored id or inline listing.
type CompareRequest struct {
	Criteria domain.SearchCriteria `json:"criteria"`
	AID      string                `json:"a_id"`
	BID      string                `json:"b_id"`
	A        *domain.Listing       `json:"a,omitempty"`
	B        *domain.Listing       `json:"b,omitempty"`
}

// decodeRank decodes a RankRequest and resolves its listings. It writes the
// error response itself and reports false on failure.
func (s *Server) decodeRank(w http.ResponseWriter, r *http.Request) (RankRequest, []domain.Listing, bool) {
	var req RankRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, nil, false
	}
	if req.Listings != nil {
		return req, req.Listings, true
	}
	listings, err := s.Listings.All(r.Context())
	if err != nil {
		s.writeServerError(w, r, err)
		return req, nil, false
	}
	return req, listings, true
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	req, listings, ok := s.decodeRank(w, r)
	if !ok {
		return
	}
	res := s.Ranking.RankProperties(listings, req.Criteria, req.Behaviors, req.Temporals, ranking.RankOptions{
		Limit:    req.Limit,
		Offset:   req.Offset,
		MinScore: req.MinScore,
	})
	metrics.RecordScored("rank", len(listings))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRankTop(w http.ResponseWriter, r *http.Request) {
	req, listings, ok := s.decodeRank(w, r)
	if !ok {
		return
	}
	top := s.Ranking.TopProperties(listings, req.Criteria, req.TopN)
	metrics.RecordScored("top", len(listings))
	writeJSON(w, http.StatusOK, RankedListResponse{Count: len(top), Listings: top})
}

func (s *Server) handleRankFilter(w http.ResponseWriter, r *http.Request) {
	req, listings, ok := s.decodeRank(w, r)
	if !ok {
		return
	}
	out := s.Ranking.FilterByScoreThreshold(listings, req.Criteria, req.Threshold)
	metrics.RecordScored("filter", len(listings))
	writeJSON(w, http.StatusOK, RankedListResponse{Count: len(out), Listings: out})
}

func (s *Server) handleRankGroups(w http.ResponseWriter, r *http.Request) {
	req, listings, ok := s.decodeRank(w, r)
	if !ok {
		return
	}
	groups := s.Ranking.GroupByScoreRange(listings, req.Criteria)
	metrics.RecordScored("groups", len(listings))
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleRankDiversified(w http.ResponseWriter, r *http.Request) {
	req, listings, ok := s.decodeRank(w, r)
	if !ok {
		return
	}
	out := s.Ranking.DiversifiedRanking(listings, req.Criteria, req.Factor)
	metrics.RecordScored("diversified", len(listings))
	writeJSON(w, http.StatusOK, RankedListResponse{Count: len(out), Listings: out})
}

func (s *Server) handleRankCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, status, msg := s.resolveListing(r, req.A, req.AID)
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	b, status, msg := s.resolveListing(r, req.B, req.BID)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	cmp := s.Ranking.CompareProperties(a, b, req.Criteria)
	metrics.RecordScored("compare", 2)
	writeJSON(w, http.StatusOK, cmp)
}

// resolveListing prefers the inline listing, then the stored one. A non-zero
// status reports why neither could be used.
func (s *Server) resolveListing(r *http.Request, inline *domain.Listing, id string) (domain.Listing, int, string) {
	if inline != nil {
		return *inline, 0, ""
	}
	if id == "" {
		return domain.Listing{}, http.StatusBadRequest, "each side needs a listing or a listing id"
	}
	l, err := s.Listings.Get(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.Listing{}, http.StatusNotFound, "not_found"
	case err != nil:
		s.log.Error().Err(err).Str("listing_id", id).Msg("resolve listing")
		return domain.Listing{}, http.StatusInternalServerError, "internal_error"
	}
	return l, 0, ""
}
