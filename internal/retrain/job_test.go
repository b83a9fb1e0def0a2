package retrain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

type fakeStore struct {
	saved []domain.ModelState
	err   error
}

func (f *fakeStore) SaveModelState(_ context.Context, state domain.ModelState) (storage.ModelSnapshot, error) {
	if f.err != nil {
		return storage.ModelSnapshot{}, f.err
	}
	f.saved = append(f.saved, state)
	return storage.ModelSnapshot{Version: int64(len(f.saved)), SampleCount: len(state.TrainingData)}, nil
}

type failingEngine struct{}

func (failingEngine) UpdateWeights(domain.WeightConfig) error { return domain.ErrInvalidWeights }

func newGuard(t *testing.T, samples int) *optimizer.Guard {
	t.Helper()
	o, err := optimizer.New(optimizer.WithMinSamples(4))
	require.NoError(t, err)
	outcomes := []domain.Outcome{domain.OutcomeConverted, domain.OutcomeContacted, domain.OutcomeViewed, domain.OutcomeIgnored}
	for i := 0; i < samples; i++ {
		out := outcomes[i%len(outcomes)]
		o.AddTrainingSample(domain.TrainingSample{
			ListingID:  "l",
			Components: domain.ScoreComponents{Compatibility: out.Reward() * 100, Behavior: 50, Temporal: 50},
			Outcome:    out,
			Timestamp:  time.Date(2026, 3, 1, 0, i, 0, 0, time.UTC),
		})
	}
	return optimizer.NewGuard(o)
}

func TestRunOnce_TrainsInstallsAndSnapshots(t *testing.T) {
	engine := matching.NewDefaultEngine()
	store := &fakeStore{}
	job := NewJob(newGuard(t, 8), engine, store)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Trained)
	assert.Equal(t, 8, res.SampleCount)
	assert.Greater(t, res.Weights.Compatibility, 0.4)
	assert.Equal(t, res.Weights, engine.Weights(), "engine runs on the trained weights")
	require.NotNil(t, res.Snapshot)
	require.Len(t, store.saved, 1)
	assert.Equal(t, res.Weights, store.saved[0].Weights)
	assert.NotNil(t, store.saved[0].LastTrainedAt)
}

func TestRunOnce_SkipsWithTooFewSamples(t *testing.T) {
	engine := matching.NewDefaultEngine()
	store := &fakeStore{}
	job := NewJob(newGuard(t, 2), engine, store)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Trained)
	assert.Equal(t, 4, res.MinSamples)
	assert.Nil(t, res.Snapshot)
	assert.Empty(t, store.saved)
	assert.Equal(t, matching.DefaultWeights(), engine.Weights())
}

func TestRunOnce_Errors(t *testing.T) {
	_, err := NewJob(newGuard(t, 8), failingEngine{}, nil).RunOnce(context.Background())
	assert.True(t, errors.Is(err, domain.ErrInvalidWeights))

	storeErr := errors.New("disk full")
	_, err = NewJob(newGuard(t, 8), matching.NewDefaultEngine(), &fakeStore{err: storeErr}).RunOnce(context.Background())
	assert.True(t, errors.Is(err, storeErr))

	res, err := NewJob(newGuard(t, 8), matching.NewDefaultEngine(), nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Snapshot)
}

func TestStartStop(t *testing.T) {
	job := NewJob(newGuard(t, 0), matching.NewDefaultEngine(), nil)

	assert.Error(t, job.Start("not a schedule"))

	require.NoError(t, job.Start("@every 1h"))
	assert.Error(t, job.Start("@every 1h"), "second start must fail")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
	job.Stop(ctx)
}
