package aggregation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ssmtariq/telemetry-core/internal/database"
	"github.com/ssmtariq/telemetry-core/internal/models"
)

// Engine orchestrates bucket planning and per-bucket aggregation over one
// ReadQuery. Buckets run concurrently with no ordering constraint between
// them; results are assembled in bucket order, never completion order,
// because they are positional in the response.
//
// A probe failure in any bucket fails the whole call. The result never
// contains a partial bucket sequence.
type Engine struct {
	store        database.TimeSeriesStore
	executor     *Executor
	defaultLimit int
	log          *logrus.Logger
}

// NewEngine creates an engine. defaultLimit bounds raw fetches when the
// query leaves the limit unset.
func NewEngine(store database.TimeSeriesStore, defaultLimit int, log *logrus.Logger) *Engine {
	return &Engine{
		store:        store,
		executor:     NewExecutor(store),
		defaultLimit: defaultLimit,
		log:          log,
	}
}

// FindAll executes one read query for one entity. AggNone delegates to a
// single bounded, sorted fetch; every other aggregation runs the bucketed
// path. Empty buckets produce no data point.
func (e *Engine) FindAll(ctx context.Context, entityID string, q models.ReadQuery) ([]models.TsValue, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Agg == models.AggNone {
		return e.FetchRaw(ctx, entityID, q.Key, q.StartTs, q.EndTs, q.Limit, q.Order)
	}

	buckets := PlanBuckets(q.StartTs, q.EndTs, q.IntervalMs)
	results := make([]models.AggregateValue, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			v, err := e.executor.AggregateBucket(gctx, entityID, q.Key, bucket, q.Agg)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate %s %s [%d..%d]: %w", q.Agg, q.Key, q.StartTs, q.EndTs, err)
	}

	out := make([]models.TsValue, 0, len(results))
	for _, v := range results {
		if !v.IsEmpty() {
			out = append(out, v.TsValue())
		}
	}
	return out, nil
}

// FetchRaw performs a single bounded, sorted fetch without bucketing.
// limit 0 maps to the configured default.
func (e *Engine) FetchRaw(ctx context.Context, entityID, key string, startTs, endTs int64, limit int, order models.SortOrder) ([]models.TsValue, error) {
	if limit == 0 {
		limit = e.defaultLimit
	}
	samples, err := e.store.FindRange(ctx, entityID, key, startTs, endTs, limit, order)
	if err != nil {
		return nil, fmt.Errorf("fetch %s [%d..%d]: %w", key, startTs, endTs, err)
	}
	out := make([]models.TsValue, len(samples))
	for i, s := range samples {
		out[i] = models.TsValue{Ts: s.Ts, Value: s.ValueAsString()}
	}
	return out, nil
}

// FindLatest retrieves the most recent value per key.
func (e *Engine) FindLatest(ctx context.Context, entityID string, keys []string) (map[string]models.TsValue, error) {
	samples, err := e.store.FindLatest(ctx, entityID, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch latest %v: %w", keys, err)
	}
	out := make(map[string]models.TsValue, len(samples))
	for _, s := range samples {
		out[s.Key] = models.TsValue{Ts: s.Ts, Value: s.ValueAsString()}
	}
	return out, nil
}
