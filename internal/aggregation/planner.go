// Package aggregation implements chunked time-range aggregation: a query
// range is split into fixed-width buckets, one aggregate is computed per
// bucket concurrently, and results are assembled in bucket order.
package aggregation

import "github.com/ssmtariq/telemetry-core/internal/models"

// PlanBuckets splits the closed range [startTs, endTs] into contiguous
// half-open buckets of intervalMs width. The final bucket's end is clamped
// to endTs+1 so a sample at endTs falls inside it. Each bucket is stamped
// with its midpoint ts.
//
// startTs == endTs produces exactly one bucket. A non-positive interval
// produces no buckets; callers validate the query first.
func PlanBuckets(startTs, endTs, intervalMs int64) []models.Bucket {
	if intervalMs <= 0 {
		return nil
	}
	var buckets []models.Bucket
	for start := startTs; start <= endTs; {
		end := start + intervalMs
		if limit := endTs + 1; end > limit {
			end = limit
		}
		buckets = append(buckets, models.Bucket{
			StartTs: start,
			EndTs:   end,
			Ts:      start + (end-start)/2,
		})
		start = end
	}
	return buckets
}
