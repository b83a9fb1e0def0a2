// Package optimizer learns scoring weights from observed listing outcomes.
//
// Training is plain arithmetic: the Pearson correlation between each score
// component and the outcome reward nudges the matching weight, weights are
// floored at a small positive value and renormalized to sum to 1.0.
//
// An Optimizer is not safe for concurrent use; share one through a Guard.
package optimizer

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/logging"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
)

const (
	DefaultLearningRate = 0.1
	DefaultMinSamples   = 50

	// minWeight keeps every component in play after a nudge.
	minWeight = 1e-2

	// TieMargin is the ABTest score gap below which neither configuration wins.
	TieMargin = 0.1
)

type Optimizer struct {
	weights       domain.WeightConfig
	samples       []domain.TrainingSample
	learningRate  float64
	minSamples    int
	lastTrainedAt *time.Time
	accuracy      float64

	now func() time.Time
	log zerolog.Logger
}

type Option func(*Optimizer)

// WithWeights sets the starting weights. New rejects invalid ones.
func WithWeights(w domain.WeightConfig) Option {
	return func(o *Optimizer) { o.weights = w }
}

func WithLearningRate(rate float64) Option {
	return func(o *Optimizer) {
		if rate > 0 {
			o.learningRate = rate
		}
	}
}

func WithMinSamples(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.minSamples = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Optimizer) { o.log = l }
}

func New(opts ...Option) (*Optimizer, error) {
	o := &Optimizer{
		weights:      matching.DefaultWeights(),
		learningRate: DefaultLearningRate,
		minSamples:   DefaultMinSamples,
		now:          time.Now,
		log:          logging.Component("optimizer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.weights.Validate(); err != nil {
		return nil, fmt.Errorf("new optimizer: %w", err)
	}
	return o, nil
}

// AddTrainingSample appends s unconditionally.
func (o *Optimizer) AddTrainingSample(s domain.TrainingSample) {
	o.samples = append(o.samples, s)
}

func (o *Optimizer) SampleCount() int { return len(o.samples) }

func (o *Optimizer) MinSamples() int { return o.minSamples }

// Train installs correlation-nudged weights. It reports false and leaves the
// weights untouched when fewer than MinSamples samples have been collected.
func (o *Optimizer) Train() bool {
	if len(o.samples) < o.minSamples {
		o.log.Info().
			Int("sample_count", len(o.samples)).
			Int("min_samples", o.minSamples).
			Msg("not enough samples")
		return false
	}

	next, corr := o.candidate()
	o.weights = next
	now := o.now()
	o.lastTrainedAt = &now
	o.accuracy = accuracy(o.samples, next)

	o.log.Info().
		Int("sample_count", len(o.samples)).
		Float64("corr_compatibility", corr.Compatibility).
		Float64("corr_behavior", corr.Behavior).
		Float64("corr_temporal", corr.Temporal).
		Float64("compatibility", next.Compatibility).
		Float64("behavior", next.Behavior).
		Float64("temporal", next.Temporal).
		Float64("accuracy", o.accuracy).
		Msg("weights trained")
	return true
}

type Evaluation struct {
	Accuracy    float64              `json:"accuracy"`
	AvgError    float64              `json:"avg_error"`
	SampleCount int                  `json:"sample_count"`
	Weights     *domain.WeightConfig `json:"weights,omitempty"`
}

// Evaluate measures the current weights against the collected samples.
func (o *Optimizer) Evaluate() Evaluation {
	if len(o.samples) == 0 {
		return Evaluation{}
	}
	w := o.weights
	return Evaluation{
		Accuracy:    accuracy(o.samples, w),
		AvgError:    avgError(o.samples, w),
		SampleCount: len(o.samples),
		Weights:     &w,
	}
}

// FeatureImportance is the current weight of each component.
func (o *Optimizer) FeatureImportance() domain.WeightConfig {
	return o.weights
}

type Suggestion struct {
	Current      domain.WeightConfig `json:"current"`
	Suggested    domain.WeightConfig `json:"suggested"`
	Rationale    string              `json:"rationale"`
	Correlations *Correlations       `json:"correlations,omitempty"`
}

// SuggestWeightAdjustments previews what Train would install without changing state.
func (o *Optimizer) SuggestWeightAdjustments() Suggestion {
	if len(o.samples) < o.minSamples {
		return Suggestion{
			Current:   o.weights,
			Suggested: o.weights,
			Rationale: fmt.Sprintf("Insufficient data: %d of %d samples collected; keeping current weights.",
				len(o.samples), o.minSamples),
		}
	}
	next, corr := o.candidate()
	return Suggestion{
		Current:      o.weights,
		Suggested:    next,
		Rationale:    rationale(len(o.samples), o.weights, next, corr),
		Correlations: &corr,
	}
}

// Reset drops all samples and training history and installs w, or the
// default weights when w is nil or invalid.
func (o *Optimizer) Reset(w *domain.WeightConfig) {
	o.samples = nil
	o.lastTrainedAt = nil
	o.accuracy = 0
	o.weights = matching.DefaultWeights()
	if w == nil {
		return
	}
	if err := w.Validate(); err != nil {
		o.log.Warn().Err(err).Msg("reset with invalid weights, using defaults")
		return
	}
	o.weights = *w
}

// LoadModelState replaces the optimizer state wholesale.
func (o *Optimizer) LoadModelState(state domain.ModelState) error {
	if err := state.Weights.Validate(); err != nil {
		return fmt.Errorf("load model state: %w", err)
	}
	o.weights = state.Weights
	o.samples = slices.Clone(state.TrainingData)
	o.lastTrainedAt = copyTime(state.LastTrainedAt)
	o.accuracy = state.Accuracy
	return nil
}

// ModelState exports a copy of the optimizer state.
func (o *Optimizer) ModelState() domain.ModelState {
	return domain.ModelState{
		Weights:       o.weights,
		TrainingData:  slices.Clone(o.samples),
		LastTrainedAt: copyTime(o.lastTrainedAt),
		Accuracy:      o.accuracy,
	}
}

type Winner string

const (
	WinnerA   Winner = "a"
	WinnerB   Winner = "b"
	WinnerTie Winner = "tie"
)

type ABTestResult struct {
	ScoreA        float64             `json:"score_a"`
	ScoreB        float64             `json:"score_b"`
	Winner        Winner              `json:"winner"`
	WinnerWeights domain.WeightConfig `json:"winner_weights"`
}

// ABTest scores two configurations on the same samples as 100 minus the mean
// absolute error. A tie reports a's weights.
func ABTest(a, b domain.WeightConfig, samples []domain.TrainingSample) ABTestResult {
	res := ABTestResult{
		ScoreA: 100 - avgError(samples, a),
		ScoreB: 100 - avgError(samples, b),
	}
	switch diff := res.ScoreA - res.ScoreB; {
	case math.Abs(diff) < TieMargin:
		res.Winner, res.WinnerWeights = WinnerTie, a
	case diff > 0:
		res.Winner, res.WinnerWeights = WinnerA, a
	default:
		res.Winner, res.WinnerWeights = WinnerB, b
	}
	return res
}

// Guard serializes access to a shared Optimizer.
type Guard struct {
	mu  sync.Mutex
	opt *Optimizer
}

func NewGuard(o *Optimizer) *Guard {
	return &Guard{opt: o}
}

// With runs fn while holding the lock. fn must not retain the optimizer.
func (g *Guard) With(fn func(*Optimizer)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.opt)
}

// Correlations are the Pearson coefficients of each component against the reward.
type Correlations struct {
	Compatibility float64 `json:"compatibility"`
	Behavior      float64 `json:"behavior"`
	Temporal      float64 `json:"temporal"`
}

func (o *Optimizer) candidate() (domain.WeightConfig, Correlations) {
	corr := correlate(o.samples)
	nudged := domain.WeightConfig{
		Compatibility: math.Max(o.weights.Compatibility+o.learningRate*corr.Compatibility, minWeight),
		Behavior:      math.Max(o.weights.Behavior+o.learningRate*corr.Behavior, minWeight),
		Temporal:      math.Max(o.weights.Temporal+o.learningRate*corr.Temporal, minWeight),
	}
	return nudged.Normalize(), corr
}

func correlate(samples []domain.TrainingSample) Correlations {
	n := len(samples)
	compat := make([]float64, n)
	behavior := make([]float64, n)
	temporal := make([]float64, n)
	rewards := make([]float64, n)
	for i, s := range samples {
		compat[i] = s.Components.Compatibility
		behavior[i] = s.Components.Behavior
		temporal[i] = s.Components.Temporal
		rewards[i] = s.Outcome.Reward()
	}
	return Correlations{
		Compatibility: pearson(compat, rewards),
		Behavior:      pearson(behavior, rewards),
		Temporal:      pearson(temporal, rewards),
	}
}

// pearson returns 0 when either series is constant.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	return math.Max(-1, math.Min(1, r))
}

// accuracy is the share of sample pairs with different rewards whose weighted
// scores are ordered the same way. Equal scores count as half agreement.
//
// Scores are grouped by reward and sorted, so every higher-reward score is
// counted against a lower group with two binary searches.
func accuracy(samples []domain.TrainingSample, w domain.WeightConfig) float64 {
	groups := make(map[float64][]float64)
	for _, s := range samples {
		r := s.Outcome.Reward()
		groups[r] = append(groups[r], s.Components.Weighted(w))
	}
	rewards := make([]float64, 0, len(groups))
	for r, scores := range groups {
		sort.Float64s(scores)
		rewards = append(rewards, r)
	}
	sort.Float64s(rewards)

	var concordant, tied, pairs int
	for i, hi := range rewards {
		for _, lo := range rewards[:i] {
			lower := groups[lo]
			pairs += len(groups[hi]) * len(lower)
			for _, score := range groups[hi] {
				below := sort.SearchFloat64s(lower, score)
				upTo := sort.Search(len(lower), func(k int) bool { return lower[k] > score })
				concordant += below
				tied += upTo - below
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return (float64(concordant) + 0.5*float64(tied)) / float64(pairs)
}

func avgError(samples []domain.TrainingSample, w domain.WeightConfig) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(s.Outcome.Reward()*100 - s.Components.Weighted(w))
	}
	return sum / float64(len(samples))
}

func rationale(n int, current, next domain.WeightConfig, corr Correlations) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on %d samples:", n)
	line := func(name string, c, from, to float64) {
		fmt.Fprintf(&b, " %s correlates %+.2f with outcomes (%.3f -> %.3f);", name, c, from, to)
	}
	line("compatibility", corr.Compatibility, current.Compatibility, next.Compatibility)
	line("behavior", corr.Behavior, current.Behavior, next.Behavior)
	line("temporal", corr.Temporal, current.Temporal, next.Temporal)
	return strings.TrimSuffix(b.String(), ";") + "."
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
