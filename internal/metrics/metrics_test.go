package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

func TestRecordTraining(t *testing.T) {
	skipped := testutil.ToFloat64(TrainingRuns.WithLabelValues("skipped"))
	trained := testutil.ToFloat64(TrainingRuns.WithLabelValues("trained"))

	RecordTraining(false, 0.9)
	RecordTraining(true, 0.75)

	assert.Equal(t, skipped+1, testutil.ToFloat64(TrainingRuns.WithLabelValues("skipped")))
	assert.Equal(t, trained+1, testutil.ToFloat64(TrainingRuns.WithLabelValues("trained")))
	assert.Equal(t, 0.75, testutil.ToFloat64(ModelAccuracy))
}

func TestSetWeights(t *testing.T) {
	SetWeights(domain.WeightConfig{Compatibility: 0.5, Behavior: 0.2, Temporal: 0.3})

	assert.Equal(t, 0.5, testutil.ToFloat64(ScoringWeight.WithLabelValues("compatibility")))
	assert.Equal(t, 0.2, testutil.ToFloat64(ScoringWeight.WithLabelValues("behavior")))
	assert.Equal(t, 0.3, testutil.ToFloat64(ScoringWeight.WithLabelValues("temporal")))
}

func TestRecordAPIRequestAndIngest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/rank", "200"))
	RecordAPIRequest("POST", "/rank", 200, 15*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/rank", "200")))

	rejected := testutil.ToFloat64(IngestedMessages.WithLabelValues("rejected"))
	RecordIngest(false)
	assert.Equal(t, rejected+1, testutil.ToFloat64(IngestedMessages.WithLabelValues("rejected")))

	scored := testutil.ToFloat64(ListingsScored.WithLabelValues("rank"))
	RecordScored("rank", 12)
	assert.Equal(t, scored+12, testutil.ToFloat64(ListingsScored.WithLabelValues("rank")))
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	require.NoError(t, err)
	for _, p := range problems {
		if p.Metric == "" {
			continue
		}
		assert.NotContains(t, p.Metric, "property_ranking_", "lint: %s", p.Text)
	}
}
