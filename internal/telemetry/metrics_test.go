package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{25 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[int](3)

	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []int{3, 4, 5}, buf.Items())
}

func TestCircularBuffer_PartiallyFilled(t *testing.T) {
	buf := NewCircularBuffer[string](10)
	buf.Add("a")
	buf.Add("b")

	assert.Equal(t, []string{"a", "b"}, buf.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"hypertension", "treatment"}, ExtractTerms("Hypertension in treatment"))
	assert.Nil(t, ExtractTerms(""))
	assert.Nil(t, ExtractTerms("a is"))
}

func TestQueryMetrics_Record(t *testing.T) {
	m := NewQueryMetrics()

	m.Record(QueryEvent{
		Query:       "hypertension treatment",
		Type:        QueryTypeHybrid,
		ResultCount: 5,
		Latency:     20 * time.Millisecond,
	})
	m.Record(QueryEvent{
		Query:       "obscure compound xyz",
		Type:        QueryTypeLexical,
		ResultCount: 0,
		Latency:     5 * time.Millisecond,
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeHybrid])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeLexical])
	assert.Equal(t, []string{"obscure compound xyz"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.InDelta(t, 50.0, snap.ZeroResultPercentage(), 0.001)
}

func TestQueryMetrics_TopTermsSorted(t *testing.T) {
	m := NewQueryMetrics()

	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "diabetes", Type: QueryTypeHybrid, ResultCount: 1})
	}
	m.Record(QueryEvent{Query: "insulin", Type: QueryTypeHybrid, ResultCount: 1})

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "diabetes", snap.TopTerms[0].Term)
	assert.Equal(t, int64(3), snap.TopTerms[0].Count)
}

func TestQueryMetrics_ExactRepeats(t *testing.T) {
	m := NewQueryMetrics()

	m.Record(QueryEvent{Query: "statins efficacy", Type: QueryTypeHybrid, ResultCount: 2})
	m.Record(QueryEvent{Query: "Statins Efficacy", Type: QueryTypeHybrid, ResultCount: 2})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	snap := NewQueryMetrics().Snapshot()

	assert.Equal(t, int64(0), snap.TotalQueries)
	assert.Zero(t, snap.ZeroResultPercentage())
	assert.Empty(t, snap.ZeroResultQueries)
}
