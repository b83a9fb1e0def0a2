// Package retrain runs optimizer training, installs the learned weights into
// the scoring engine and snapshots the resulting model state.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/logging"
	"github.com/denisok6893-rgb/property-ranking/internal/metrics"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

// WeightSetter receives trained weights. *matching.Engine implements it.
type WeightSetter interface {
	UpdateWeights(w domain.WeightConfig) error
}

type SnapshotStore interface {
	SaveModelState(ctx context.Context, state domain.ModelState) (storage.ModelSnapshot, error)
}

type Result struct {
	Trained     bool                   `json:"trained"`
	Weights     domain.WeightConfig    `json:"weights"`
	Accuracy    float64                `json:"accuracy"`
	SampleCount int                    `json:"sample_count"`
	MinSamples  int                    `json:"min_samples"`
	Snapshot    *storage.ModelSnapshot `json:"snapshot,omitempty"`
}

type Job struct {
	guard  *optimizer.Guard
	engine WeightSetter
	store  SnapshotStore
	log    zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJob builds a job. store may be nil to skip snapshots.
func NewJob(guard *optimizer.Guard, engine WeightSetter, store SnapshotStore) *Job {
	return &Job{
		guard:  guard,
		engine: engine,
		store:  store,
		log:    logging.Component("retrain"),
	}
}

// RunOnce trains the optimizer. Skipped runs (too few samples) return a
// Result with Trained=false and no error.
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	var (
		res   Result
		state domain.ModelState
	)
	j.guard.With(func(o *optimizer.Optimizer) {
		res.Trained = o.Train()
		res.Weights = o.FeatureImportance()
		res.SampleCount = o.SampleCount()
		res.MinSamples = o.MinSamples()
		if res.Trained {
			state = o.ModelState()
			res.Accuracy = state.Accuracy
		}
	})

	metrics.RecordTraining(res.Trained, res.Accuracy)
	metrics.SetTrainingSamples(res.SampleCount)
	if !res.Trained {
		return res, nil
	}

	if err := j.engine.UpdateWeights(res.Weights); err != nil {
		return res, fmt.Errorf("install trained weights: %w", err)
	}
	metrics.SetWeights(res.Weights)

	if j.store != nil {
		snap, err := j.store.SaveModelState(ctx, state)
		if err != nil {
			return res, fmt.Errorf("save model snapshot: %w", err)
		}
		res.Snapshot = &snap
	}

	ev := j.log.Info().
		Int("sample_count", res.SampleCount).
		Float64("accuracy", res.Accuracy).
		Float64("compatibility", res.Weights.Compatibility).
		Float64("behavior", res.Weights.Behavior).
		Float64("temporal", res.Weights.Temporal)
	if res.Snapshot != nil {
		ev = ev.Int64("snapshot_version", res.Snapshot.Version)
	}
	ev.Msg("retrain complete")
	return res, nil
}

// Start schedules RunOnce on a cron schedule such as "@every 1h" or "0 3 * * *".
func (j *Job) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return errors.New("retrain job already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, j.tick); err != nil {
		return fmt.Errorf("add cron: %w", err)
	}
	c.Start()
	j.cron = c
	j.log.Info().Str("schedule", schedule).Msg("retrain scheduled")
	return nil
}

// Stop waits for a running tick to finish or ctx to expire.
func (j *Job) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (j *Job) tick() {
	if _, err := j.RunOnce(context.Background()); err != nil {
		j.log.Error().Err(err).Msg("scheduled retrain failed")
	}
}
