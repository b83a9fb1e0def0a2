package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

// ListingsRepo is the listing source behind /listings and the ranking
// endpoints. Get and Delete return storage.ErrNotFound for unknown ids and
// Create returns storage.ErrConflict for a taken id.
type ListingsRepo interface {
	List(ctx context.Context, f storage.ListingFilter) ([]domain.Listing, int, error)
	All(ctx context.Context) ([]domain.Listing, error)
	Get(ctx context.Context, id string) (domain.Listing, error)
	Create(ctx context.Context, l domain.Listing) (domain.Listing, error)
	Delete(ctx context.Context, id string) error
}

// MemoryListingsRepo keeps listings in insertion order.
type MemoryListingsRepo struct {
	mu    sync.RWMutex
	items []domain.Listing
}

func NewMemoryListingsRepo(items []domain.Listing) *MemoryListingsRepo {
	return &MemoryListingsRepo{items: append([]domain.Listing(nil), items...)}
}

func (m *MemoryListingsRepo) All(_ context.Context) ([]domain.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Listing{}, m.items...), nil
}

func (m *MemoryListingsRepo) List(_ context.Context, f storage.ListingFilter) ([]domain.Listing, int, error) {
	m.mu.RLock()
	matched := make([]domain.Listing, 0, len(m.items))
	for _, l := range m.items {
		if matchesFilter(l, f) {
			matched = append(matched, l)
		}
	}
	m.mu.RUnlock()

	switch f.Sort {
	case "price_asc":
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price < matched[j].Price })
	case "price_desc":
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price > matched[j].Price })
	}

	total := len(matched)
	offset := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(offset+f.Limit, total)
	}
	return matched[offset:end], total, nil
}

func (m *MemoryListingsRepo) Get(_ context.Context, id string) (domain.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.items {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Listing{}, storage.ErrNotFound
}

func (m *MemoryListingsRepo) Create(_ context.Context, l domain.Listing) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	for _, existing := range m.items {
		if existing.ID == l.ID {
			return domain.Listing{}, fmt.Errorf("%w: listing %s", storage.ErrConflict, l.ID)
		}
	}
	m.items = append(m.items, l)
	return l, nil
}

func (m *MemoryListingsRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.items {
		if l.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func matchesFilter(l domain.Listing, f storage.ListingFilter) bool {
	if loc := matching.NormalizePlace(f.Location); loc != "" {
		if !strings.Contains(matching.NormalizePlace(l.Municipality), loc) &&
			!strings.Contains(matching.NormalizePlace(l.Parish), loc) &&
			!strings.Contains(matching.NormalizePlace(l.District), loc) {
			return false
		}
	}
	if f.Typology != "" && !strings.EqualFold(l.Typology, f.Typology) {
		return false
	}
	if f.MinPrice > 0 && l.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && l.Price > f.MaxPrice {
		return false
	}
	if f.MinBedrooms > 0 && l.Bedrooms < f.MinBedrooms {
		return false
	}
	return true
}

type ListingsListResponse struct {
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Total  int              `json:"total"`
	Items  []domain.Listing `json:"items"`
}

func (s *Server) handleListingsList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 20, 0)
	q := r.URL.Query()

	f := storage.ListingFilter{
		Limit:    limit,
		Offset:   offset,
		Location: q.Get("location"),
		Typology: q.Get("typology"),
		Sort:     q.Get("sort"),
	}
	f.MinPrice, _ = strconv.ParseFloat(q.Get("min_price"), 64)
	f.MaxPrice, _ = strconv.ParseFloat(q.Get("max_price"), 64)
	f.MinBedrooms, _ = strconv.Atoi(q.Get("min_bedrooms"))

	items, total, err := s.Listings.List(r.Context(), f)
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListingsListResponse{
		Limit:  limit,
		Offset: offset,
		Total:  total,
		Items:  items,
	})
}

type CreateListingRequest struct {
	ID                      string    `json:"id"`
	Title                   string    `json:"title"`
	District                string    `json:"district"`
	Municipality            string    `json:"municipality" validate:"required_without_all=District Parish"`
	Parish                  string    `json:"parish"`
	Latitude                *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude               *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Typology                string    `json:"typology"`
	AreaSQM                 float64   `json:"area_sqm" validate:"gte=0"`
	Bedrooms                int       `json:"bedrooms" validate:"gte=0"`
	Bathrooms               int       `json:"bathrooms" validate:"gte=0"`
	Price                   float64   `json:"price" validate:"gt=0"`
	PortalCount             int       `json:"portal_count" validate:"gte=0"`
	FirstSeenAt             time.Time `json:"first_seen_at"`
	LastSeenAt              time.Time `json:"last_seen_at"`
	AvailabilityProbability *float64  `json:"availability_probability" validate:"omitempty,gte=0,lte=1"`
}

func (req CreateListingRequest) listing() domain.Listing {
	return domain.Listing{
		ID:                      req.ID,
		Title:                   req.Title,
		District:                req.District,
		Municipality:            req.Municipality,
		Parish:                  req.Parish,
		Latitude:                req.Latitude,
		Longitude:               req.Longitude,
		Typology:                strings.ToUpper(strings.TrimSpace(req.Typology)),
		AreaSQM:                 req.AreaSQM,
		Bedrooms:                req.Bedrooms,
		Bathrooms:               req.Bathrooms,
		Price:                   req.Price,
		PortalCount:             req.PortalCount,
		FirstSeenAt:             req.FirstSeenAt,
		LastSeenAt:              req.LastSeenAt,
		AvailabilityProbability: req.AvailabilityProbability,
	}
}

func (s *Server) handleListingsCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l := req.listing()
	if l.FirstSeenAt.IsZero() {
		l.FirstSeenAt = s.now().UTC()
	}
	if l.LastSeenAt.IsZero() {
		l.LastSeenAt = l.FirstSeenAt
	}

	created, err := s.Listings.Create(r.Context(), l)
	switch {
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "already_exists")
		return
	case err != nil:
		s.writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListingsGet(w http.ResponseWriter, r *http.Request) {
	l, err := s.Listings.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case err != nil:
		s.writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleListingsDelete(w http.ResponseWriter, r *http.Request) {
	err := s.Listings.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case err != nil:
		s.writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
