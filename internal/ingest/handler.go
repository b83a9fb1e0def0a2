// Package ingest turns outcome events from a message queue into optimizer
// training samples.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/metrics"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
)

// ErrMalformed marks messages that can never be processed and must not be requeued.
var ErrMalformed = errors.New("malformed outcome event")

// Event is the wire format of one observed outcome.
type Event struct {
	ListingID  string          `json:"listing_id" validate:"required"`
	Components EventComponents `json:"components"`
	Outcome    string          `json:"outcome" validate:"required,oneof=converted contacted viewed ignored"`
	Timestamp  time.Time       `json:"timestamp"`
}

type EventComponents struct {
	Compatibility float64 `json:"compatibility" validate:"gte=0,lte=100"`
	Behavior      float64 `json:"behavior" validate:"gte=0,lte=100"`
	Temporal      float64 `json:"temporal" validate:"gte=0,lte=100"`
}

// Sample converts the event, stamping it with now when it carries no timestamp.
func (e Event) Sample(now time.Time) domain.TrainingSample {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = now.UTC()
	}
	return domain.TrainingSample{
		ListingID: e.ListingID,
		Components: domain.ScoreComponents{
			Compatibility: e.Components.Compatibility,
			Behavior:      e.Components.Behavior,
			Temporal:      e.Components.Temporal,
		},
		Outcome:   domain.Outcome(e.Outcome),
		Timestamp: ts,
	}
}

type SampleSink interface {
	AddTrainingSample(s domain.TrainingSample)
}

type guardSink struct {
	guard *optimizer.Guard
}

// NewGuardSink feeds samples into a shared optimizer.
func NewGuardSink(g *optimizer.Guard) SampleSink {
	return guardSink{guard: g}
}

func (s guardSink) AddTrainingSample(sample domain.TrainingSample) {
	s.guard.With(func(o *optimizer.Optimizer) {
		o.AddTrainingSample(sample)
		metrics.SetTrainingSamples(o.SampleCount())
	})
}

type Handler struct {
	sink     SampleSink
	now      func() time.Time
	validate *validator.Validate
}

func NewHandler(sink SampleSink) *Handler {
	return &Handler{sink: sink, now: time.Now, validate: validator.New()}
}

// HandleMessage decodes one event and records it. Decoding and validation
// failures wrap ErrMalformed.
func (h *Handler) HandleMessage(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.RecordIngest(false)
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := h.validate.Struct(ev); err != nil {
		metrics.RecordIngest(false)
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	h.sink.AddTrainingSample(ev.Sample(h.now()))
	metrics.RecordIngest(true)
	return nil
}
