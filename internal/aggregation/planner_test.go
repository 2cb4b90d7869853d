package aggregation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssmtariq/telemetry-core/internal/aggregation"
	"github.com/ssmtariq/telemetry-core/internal/models"
)

func TestPlanBuckets(t *testing.T) {
	tests := []struct {
		name       string
		startTs    int64
		endTs      int64
		intervalMs int64
		want       []models.Bucket
	}{
		{
			name:       "range splits into interval-width buckets with clamped tail",
			startTs:    1000,
			endTs:      4000,
			intervalMs: 1000,
			want: []models.Bucket{
				{StartTs: 1000, EndTs: 2000, Ts: 1500},
				{StartTs: 2000, EndTs: 3000, Ts: 2500},
				{StartTs: 3000, EndTs: 4000, Ts: 3500},
				{StartTs: 4000, EndTs: 4001, Ts: 4000},
			},
		},
		{
			name:       "single point range produces one bucket",
			startTs:    5000,
			endTs:      5000,
			intervalMs: 1000,
			want: []models.Bucket{
				{StartTs: 5000, EndTs: 5001, Ts: 5000},
			},
		},
		{
			name:       "interval wider than range produces one clamped bucket",
			startTs:    1000,
			endTs:      1500,
			intervalMs: 60000,
			want: []models.Bucket{
				{StartTs: 1000, EndTs: 1501, Ts: 1250},
			},
		},
		{
			name:       "non-positive interval produces no buckets",
			startTs:    1000,
			endTs:      4000,
			intervalMs: 0,
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aggregation.PlanBuckets(tt.startTs, tt.endTs, tt.intervalMs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanBucketsCoverRangeWithoutGaps(t *testing.T) {
	buckets := aggregation.PlanBuckets(0, 99999, 7000)
	require.NotEmpty(t, buckets)

	assert.Equal(t, int64(0), buckets[0].StartTs)
	assert.Equal(t, int64(100000), buckets[len(buckets)-1].EndTs)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].EndTs, buckets[i].StartTs, "bucket %d must start where the previous ended", i)
	}
	for _, b := range buckets {
		assert.GreaterOrEqual(t, b.Ts, b.StartTs)
		assert.Less(t, b.Ts, b.EndTs)
	}
}
