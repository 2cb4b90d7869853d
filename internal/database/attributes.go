package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/ssmtariq/telemetry-core/internal/models"
)

// AttributeStore provides the attribute lookups used for latest-value
// backfill when a subscription asks for attribute keys that are not part
// of the time-series snapshot.
type AttributeStore interface {
	FindAttributes(ctx context.Context, entityID string, keys []string) ([]models.Sample, error)
}

func (s *PostgresStore) FindAttributes(ctx context.Context, entityID string, keys []string) ([]models.Sample, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT key, last_update_ts, str_v, num_v
        FROM attribute_kv
        WHERE entity_id = $1 AND key = ANY($2)
    `, entityID, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes: %w", err)
	}
	defer rows.Close()

	var results []models.Sample
	for rows.Next() {
		var (
			sample models.Sample
			strV   sql.NullString
			numV   sql.NullFloat64
		)
		if err := rows.Scan(&sample.Key, &sample.Ts, &strV, &numV); err != nil {
			return nil, err
		}
		if strV.Valid {
			sample.StrVal = &strV.String
		}
		if numV.Valid {
			sample.NumVal = &numV.Float64
		}
		results = append(results, sample)
	}
	return results, rows.Err()
}

var _ AttributeStore = (*PostgresStore)(nil)
