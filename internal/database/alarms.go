package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/ssmtariq/telemetry-core/internal/models"
)

// AlarmStore provides paged alarm lookups for alarm subscriptions. The
// startTs bound implements the rolling time window: only alarms created at
// or after it are returned.
type AlarmStore interface {
	FindAlarms(ctx context.Context, entityIDs []string, pageLink models.PageLink, startTs int64) (models.PageData[models.AlarmData], error)
}

func (s *PostgresStore) FindAlarms(
	ctx context.Context,
	entityIDs []string,
	pageLink models.PageLink,
	startTs int64,
) (models.PageData[models.AlarmData], error) {
	page := models.EmptyPage[models.AlarmData]()
	if len(entityIDs) == 0 {
		return page, nil
	}

	var total int64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*)
        FROM alarm
        WHERE originator_id = ANY($1) AND created_time >= $2
    `, pq.Array(entityIDs), startTs).Scan(&total)
	if err != nil {
		return page, fmt.Errorf("failed to count alarms: %w", err)
	}

	pageSize := pageLink.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, originator_id, type, severity, status, created_time,
               COALESCE(ack_ts, 0), COALESCE(clear_ts, 0)
        FROM alarm
        WHERE originator_id = ANY($1) AND created_time >= $2
        ORDER BY created_time DESC, id
        LIMIT $3 OFFSET $4
    `, pq.Array(entityIDs), startTs, pageSize, pageLink.Page*pageSize)
	if err != nil {
		return page, fmt.Errorf("failed to query alarms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.AlarmData
		if err := rows.Scan(&a.ID, &a.EntityID, &a.Type, &a.Severity, &a.Status, &a.CreatedTs, &a.AckTs, &a.ClearTs); err != nil {
			return page, err
		}
		page.Data = append(page.Data, a)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}

	page.TotalElements = total
	page.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	page.HasNext = int64((pageLink.Page+1)*pageSize) < total
	return page, nil
}

var _ AlarmStore = (*PostgresStore)(nil)
