package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/denisok6893-rgb/property-ranking/internal/logging"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
	"github.com/denisok6893-rgb/property-ranking/internal/metrics"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
	"github.com/denisok6893-rgb/property-ranking/internal/ranking"
	"github.com/denisok6893-rgb/property-ranking/internal/retrain"
)

const maxBodyBytes = 4 << 20

// Trainer runs one optimizer training pass. *retrain.Job implements it.
type Trainer interface {
	RunOnce(ctx context.Context) (retrain.Result, error)
}

type Server struct {
	Ranking   *ranking.Service
	Optimizer *optimizer.Guard
	Listings  ListingsRepo
	Trainer   Trainer

	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewServer wires the handlers. Nil dependencies get in-memory defaults:
// a default engine, an empty optimizer, an empty listing repo and a trainer
// without snapshots.
func NewServer(svc *ranking.Service, guard *optimizer.Guard, listings ListingsRepo, trainer Trainer) *Server {
	if svc == nil {
		svc = ranking.NewService(matching.NewDefaultEngine(), ranking.DefaultDiversityConfig())
	}
	if guard == nil {
		o, _ := optimizer.New()
		guard = optimizer.NewGuard(o)
	}
	if listings == nil {
		listings = NewMemoryListingsRepo(nil)
	}
	if trainer == nil {
		trainer = retrain.NewJob(guard, svc, nil)
	}
	return &Server{
		Ranking:   svc,
		Optimizer: guard,
		Listings:  listings,
		Trainer:   trainer,
		log:       logging.Component("http"),
		validate:  validator.New(),
		now:       time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/listings", func(r chi.Router) {
		r.Get("/", s.handleListingsList)
		r.Post("/", s.handleListingsCreate)
		r.Get("/{id}", s.handleListingsGet)
		r.Delete("/{id}", s.handleListingsDelete)
	})

	r.Route("/rank", func(r chi.Router) {
		r.Post("/", s.handleRank)
		r.Post("/top", s.handleRankTop)
		r.Post("/filter", s.handleRankFilter)
		r.Post("/groups", s.handleRankGroups)
		r.Post("/compare", s.handleRankCompare)
		r.Post("/diversified", s.handleRankDiversified)
	})

	r.Get("/weights", s.handleWeightsGet)
	r.Put("/weights", s.handleWeightsPut)

	r.Route("/optimizer", func(r chi.Router) {
		r.Post("/samples", s.handleOptimizerSamples)
		r.Post("/train", s.handleOptimizerTrain)
		r.Get("/evaluate", s.handleOptimizerEvaluate)
		r.Get("/importance", s.handleOptimizerImportance)
		r.Get("/suggestions", s.handleOptimizerSuggestions)
		r.Post("/reset", s.handleOptimizerReset)
		r.Get("/state", s.handleOptimizerStateGet)
		r.Put("/state", s.handleOptimizerStatePut)
		r.Post("/abtest", s.handleOptimizerABTest)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs each request and records it under its route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		dur := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, dur)

		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", dur).
			Msg("request")
	})
}

// decodeJSON decodes the body into dst and runs struct validation.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServerError hides internal details from the client and logs them.
func (s *Server) writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func parseLimitOffset(r *http.Request, defLimit, defOffset int) (int, int) {
	q := r.URL.Query()

	limit := defLimit
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = defLimit
	}
	// safety cap
	if limit > 200 {
		limit = 200
	}

	offset := defOffset
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = defOffset
	}

	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
