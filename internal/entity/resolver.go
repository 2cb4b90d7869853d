// Package entity resolves declarative entity queries into concrete,
// stably ordered entity lists.
package entity

import (
	"context"
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/models"
)

// Resolver turns a declarative filter plus page link into a concrete
// entity page. Resolution is re-evaluatable: unchanged inputs must yield
// the same entities in the same order.
type Resolver interface {
	Resolve(ctx context.Context, q models.EntityDataQuery) ([]models.EntityData, error)
	Count(ctx context.Context, q models.EntityDataQuery) (int64, error)
}

// SQLResolver resolves queries against the entities table. Static (non
// dynamic) resolutions are memoized in an LRU cache; dynamic queries
// always hit the database since their whole point is observing changes.
type SQLResolver struct {
	db    *sql.DB
	cache *lru.Cache
	log   *logrus.Logger
}

// NewSQLResolver creates a resolver with an LRU cache of the given size.
func NewSQLResolver(db *sql.DB, cacheSize int, log *logrus.Logger) (*SQLResolver, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &SQLResolver{db: db, cache: cache, log: log}, nil
}

func (r *SQLResolver) Resolve(ctx context.Context, q models.EntityDataQuery) ([]models.EntityData, error) {
	key := cacheKey(q)
	if !q.IsDynamic() {
		if cached, ok := r.cache.Get(key); ok {
			return cached.([]models.EntityData), nil
		}
	}

	pageSize := q.PageLink.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	rows, err := r.db.QueryContext(ctx, `
        SELECT id
        FROM entities
        WHERE entity_type = $1 AND ($2 = '' OR name ILIKE $2 || '%')
        ORDER BY created_time, id
        LIMIT $3 OFFSET $4
    `, q.Filter.EntityType, q.Filter.NameFilter, pageSize, q.PageLink.Page*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity query: %w", err)
	}
	defer rows.Close()

	var entities []models.EntityData
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		entities = append(entities, models.NewEntityData(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !q.IsDynamic() {
		r.cache.Add(key, entities)
	}
	return entities, nil
}

func (r *SQLResolver) Count(ctx context.Context, q models.EntityDataQuery) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*)
        FROM entities
        WHERE entity_type = $1 AND ($2 = '' OR name ILIKE $2 || '%')
    `, q.Filter.EntityType, q.Filter.NameFilter).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func cacheKey(q models.EntityDataQuery) string {
	return fmt.Sprintf("%s:%s:%d:%d", q.Filter.EntityType, q.Filter.NameFilter, q.PageLink.Page, q.PageLink.PageSize)
}

var _ Resolver = (*SQLResolver)(nil)
