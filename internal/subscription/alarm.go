package subscription

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/database"
	"github.com/ssmtariq/telemetry-core/internal/entity"
	"github.com/ssmtariq/telemetry-core/internal/models"
	"github.com/ssmtariq/telemetry-core/internal/telemetry"
)

// AlarmDataSubCtx is the alarm subscription context: alarms of the
// resolved entities inside a rolling time window.
//
// Alarm contexts rate-limit themselves: every forced re-query (triggered
// by a telemetry push) bumps the invocation counter, and once the counter
// exceeds the configured max, further forced queries in the interval are
// dropped. The scheduler tick resets the counter and runs one catch-up
// query if anything was dropped.
type AlarmDataSubCtx struct {
	baseSubCtx
	resolver    entity.Resolver
	alarms      database.AlarmStore
	maxEntities int
	maxQueries  int32
	invocations atomic.Int32
	now         func() int64

	// guarded by mu
	query    *models.AlarmDataQuery
	entities []models.EntityData
}

func newAlarmDataSubCtx(
	log *logrus.Logger,
	sessionID string,
	cmdID int,
	channel MessageChannel,
	hub telemetry.Manager,
	resolver entity.Resolver,
	alarms database.AlarmStore,
	maxEntities int,
	maxQueries int,
	now func() int64,
) *AlarmDataSubCtx {
	return &AlarmDataSubCtx{
		baseSubCtx:  newBaseSubCtx(log, sessionID, cmdID, channel, hub),
		resolver:    resolver,
		alarms:      alarms,
		maxEntities: maxEntities,
		maxQueries:  int32(maxQueries),
		now:         now,
	}
}

// SetAndResolveQuery resolves the alarm query's entity filter.
func (c *AlarmDataSubCtx) SetAndResolveQuery(ctx context.Context, q models.AlarmDataQuery) error {
	entities, err := c.resolver.Resolve(ctx, models.EntityDataQuery{Filter: q.Filter, PageLink: q.PageLink})
	if err != nil {
		return fmt.Errorf("failed to resolve alarm query: %w", err)
	}
	if len(entities) > c.maxEntities {
		entities = entities[:c.maxEntities]
	}
	c.mu.Lock()
	c.query = &q
	c.entities = entities
	c.mu.Unlock()
	return nil
}

// EntityCount returns the size of the resolved entity set.
func (c *AlarmDataSubCtx) EntityCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entities)
}

// SendEmptyPage pushes an empty alarm page. Used when the query matched
// no entities; in that case no alarm fetch happens and no refresh is
// scheduled.
func (c *AlarmDataSubCtx) SendEmptyPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := models.EmptyPage[models.AlarmData]()
	c.sendLocked(&AlarmDataUpdate{CmdID: c.cmdID, Data: &page, AllowedEntities: c.maxEntities})
}

// FetchAlarms queries the current alarm page inside the rolling window
// and pushes it.
func (c *AlarmDataSubCtx) FetchAlarms(ctx context.Context) error {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return fmt.Errorf("alarm subscription has no query")
	}
	q := *c.query
	ids := make([]string, len(c.entities))
	for i, e := range c.entities {
		ids[i] = e.EntityID
	}
	c.mu.Unlock()

	var startTs int64
	if q.PageLink.TimeWindowMs > 0 {
		startTs = c.now() - q.PageLink.TimeWindowMs
	}
	page, err := c.alarms.FindAlarms(ctx, ids, q.PageLink, startTs)
	if err != nil {
		return fmt.Errorf("failed to fetch alarms: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return nil
	}
	c.sendLocked(&AlarmDataUpdate{
		CmdID:           c.cmdID,
		Data:            &page,
		AllowedEntities: c.maxEntities,
		TotalEntities:   len(c.entities),
	})
	return nil
}

// CreateLatestValuesSubscriptions registers latest-value interest for the
// resolved entities; each push triggers a rate-limited alarm re-query.
func (c *AlarmDataSubCtx) CreateLatestValuesSubscriptions(keys []string) {
	if len(keys) == 0 {
		return
	}
	set := keySet(keys)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entities {
		id := c.hub.Subscribe(&telemetry.Subscription{
			SessionID: c.sessionID,
			EntityID:  e.EntityID,
			Keys:      set,
			Latest:    true,
			OnUpdate:  c.onTelemetryUpdate,
		})
		c.addSubscriptionLocked(id)
	}
}

func (c *AlarmDataSubCtx) onTelemetryUpdate(string, map[string][]models.TsValue) {
	c.TryAlarmQuery(context.Background())
}

// TryAlarmQuery runs one forced alarm re-query unless the per-interval
// budget is already spent. Over-budget queries are dropped, not queued.
func (c *AlarmDataSubCtx) TryAlarmQuery(ctx context.Context) {
	if c.stopped.Load() {
		return
	}
	if c.invocations.Add(1) > c.maxQueries {
		c.log.Debug("Alarm query budget exhausted, dropping forced re-query")
		return
	}
	if err := c.FetchAlarms(ctx); err != nil {
		c.log.WithError(err).Warn("Failed to execute forced alarm query")
	}
}

// CheckAndResetInvocationCounter is the scheduler entry point: reset the
// per-interval budget and, if forced queries were dropped during the
// interval, run one catch-up fetch so the client converges.
func (c *AlarmDataSubCtx) CheckAndResetInvocationCounter(ctx context.Context) error {
	exceeded := c.invocations.Swap(0) > c.maxQueries
	if !exceeded {
		return nil
	}
	return c.FetchAlarms(ctx)
}

// Update re-resolves the entity set and re-fetches alarms. Used when the
// service explicitly refreshes an alarm context outside the counter path.
func (c *AlarmDataSubCtx) Update(ctx context.Context) error {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return nil
	}
	q := *c.query
	c.mu.Unlock()

	entities, err := c.resolver.Resolve(ctx, models.EntityDataQuery{Filter: q.Filter, PageLink: q.PageLink})
	if err != nil {
		return fmt.Errorf("failed to refresh alarm query: %w", err)
	}
	if len(entities) > c.maxEntities {
		entities = entities[:c.maxEntities]
	}
	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return nil
	}
	c.entities = entities
	c.mu.Unlock()
	return c.FetchAlarms(ctx)
}
