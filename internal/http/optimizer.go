package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/ingest"
	"github.com/denisok6893-rgb/property-ranking/internal/metrics"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
)

func (s *Server) handleWeightsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Ranking.Weights())
}

func (s *Server) handleWeightsPut(w http.ResponseWriter, r *http.Request) {
	var req domain.WeightConfig
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Ranking.UpdateWeights(req); err != nil {
		if errors.Is(err, domain.ErrInvalidWeights) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeServerError(w, r, err)
		return
	}
	metrics.SetWeights(req)
	s.log.Info().
		Float64("compatibility", req.Compatibility).
		Float64("behavior", req.Behavior).
		Float64("temporal", req.Temporal).
		Msg("weights updated")
	writeJSON(w, http.StatusOK, s.Ranking.Weights())
}

// SamplesRequest carries outcome events in the same shape the queue consumer accepts.
type SamplesRequest struct {
	Samples []ingest.Event `json:"samples" validate:"required,min=1,dive"`
}

type SamplesResponse struct {
	Added       int `json:"added"`
	SampleCount int `json:"sample_count"`
}

func (s *Server) handleOptimizerSamples(w http.ResponseWriter, r *http.Request) {
	var req SamplesRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	var total int
	s.Optimizer.With(func(o *optimizer.Optimizer) {
		for _, ev := range req.Samples {
			o.AddTrainingSample(ev.Sample(now))
		}
		total = o.SampleCount()
	})
	metrics.SetTrainingSamples(total)
	writeJSON(w, http.StatusAccepted, SamplesResponse{Added: len(req.Samples), SampleCount: total})
}

func (s *Server) handleOptimizerTrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.Trainer.RunOnce(r.Context())
	if err != nil {
		s.writeServerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOptimizerEvaluate(w http.ResponseWriter, r *http.Request) {
	var ev optimizer.Evaluation
	s.Optimizer.With(func(o *optimizer.Optimizer) { ev = o.Evaluate() })
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleOptimizerImportance(w http.ResponseWriter, r *http.Request) {
	var imp domain.WeightConfig
	s.Optimizer.With(func(o *optimizer.Optimizer) { imp = o.FeatureImportance() })
	writeJSON(w, http.StatusOK, imp)
}

func (s *Server) handleOptimizerSuggestions(w http.ResponseWriter, r *http.Request) {
	var sug optimizer.Suggestion
	s.Optimizer.With(func(o *optimizer.Optimizer) { sug = o.SuggestWeightAdjustments() })
	writeJSON(w, http.StatusOK, sug)
}

// ResetRequest is optional; an empty body resets to the default weights.
type ResetRequest struct {
	Weights *domain.WeightConfig `json:"weights,omitempty"`
}

func (s *Server) handleOptimizerReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := s.decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var weights domain.WeightConfig
	s.Optimizer.With(func(o *optimizer.Optimizer) {
		o.Reset(req.Weights)
		weights = o.FeatureImportance()
	})
	metrics.SetTrainingSamples(0)
	s.log.Info().Msg("optimizer reset")
	writeJSON(w, http.StatusOK, weights)
}

func (s *Server) handleOptimizerStateGet(w http.ResponseWriter, r *http.Request) {
	var state domain.ModelState
	s.Optimizer.With(func(o *optimizer.Optimizer) { state = o.ModelState() })
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleOptimizerStatePut(w http.ResponseWriter, r *http.Request) {
	var state domain.ModelState
	if err := s.decodeJSON(w, r, &state); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		err   error
		count int
	)
	s.Optimizer.With(func(o *optimizer.Optimizer) {
		err = o.LoadModelState(state)
		count = o.SampleCount()
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.SetTrainingSamples(count)
	writeJSON(w, http.StatusOK, map[string]any{"status": "loaded", "sample_count": count})
}

// ABTestRequest compares two weight sets. Without samples the optimizer's own
// training data is used.
type ABTestRequest struct {
	WeightsA domain.WeightConfig `json:"weights_a"`
	WeightsB domain.WeightConfig `json:"weights_b"`
	Samples  []ingest.Event      `json:"samples,omitempty" validate:"omitempty,dive"`
}

func (s *Server) handleOptimizerABTest(w http.ResponseWriter, r *http.Request) {
	var req ABTestRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := errors.Join(req.WeightsA.Validate(), req.WeightsB.Validate()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var samples []domain.TrainingSample
	if req.Samples != nil {
		now := s.now()
		samples = make([]domain.TrainingSample, 0, len(req.Samples))
		for _, ev := range req.Samples {
			samples = append(samples, ev.Sample(now))
		}
	} else {
		s.Optimizer.With(func(o *optimizer.Optimizer) { samples = o.ModelState().TrainingData })
	}

	writeJSON(w, http.StatusOK, optimizer.ABTest(req.WeightsA, req.WeightsB, samples))
}
