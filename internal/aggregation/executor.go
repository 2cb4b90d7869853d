package aggregation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ssmtariq/telemetry-core/internal/database"
	"github.com/ssmtariq/telemetry-core/internal/models"
)

// ErrInvalidAggregation marks an aggregation kind the executor cannot
// compute. The upstream query validator restricts the set, so hitting this
// is a programming error, never user input.
var ErrInvalidAggregation = errors.New("unsupported aggregation type")

// Executor computes one AggregateValue for one (key, bucket, aggregation).
//
// MIN and MAX need two probes, one per value domain, because sample values
// are polymorphic and the store indexes string and numeric values
// separately. All probes for a bucket run concurrently and the executor
// fails fast: any probe error fails the bucket.
type Executor struct {
	store database.TimeSeriesStore
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store database.TimeSeriesStore) *Executor {
	return &Executor{store: store}
}

// AggregateBucket runs all probes the aggregation kind requires and
// reduces them to a single value. When more than one probe returns data
// the first populated result in canonical probe order wins: the string
// probe takes precedence over the numeric probe.
//
// The returned value always carries the bucket midpoint ts and the query
// key, even when empty.
func (e *Executor) AggregateBucket(
	ctx context.Context,
	entityID, key string,
	bucket models.Bucket,
	agg models.Aggregation,
) (models.AggregateValue, error) {
	domains, err := probeDomains(agg)
	if err != nil {
		return models.AggregateValue{}, err
	}

	// Probe results keep their slot so precedence follows probe order,
	// not completion order.
	results := make([]models.AggregateValue, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range domains {
		i, domain := i, domain
		g.Go(func() error {
			v, err := e.store.FindAggregate(gctx, entityID, key, bucket.StartTs, bucket.EndTs, agg, domain)
			if err != nil {
				return fmt.Errorf("%s probe failed: %w", domain, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.AggregateValue{}, err
	}

	for _, v := range results {
		if !v.IsEmpty() {
			v.Ts = bucket.Ts
			v.Key = key
			return v, nil
		}
	}
	return models.AggregateValue{Ts: bucket.Ts, Key: key}, nil
}

func probeDomains(agg models.Aggregation) ([]models.ValueDomain, error) {
	switch agg {
	case models.AggAvg, models.AggSum, models.AggCount:
		return []models.ValueDomain{models.DomainNumeric}, nil
	case models.AggMin, models.AggMax:
		return []models.ValueDomain{models.DomainString, models.DomainNumeric}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAggregation, agg)
	}
}
