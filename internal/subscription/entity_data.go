package subscription

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ssmtariq/telemetry-core/internal/aggregation"
	"github.com/ssmtariq/telemetry-core/internal/database"
	"github.com/ssmtariq/telemetry-core/internal/entity"
	"github.com/ssmtariq/telemetry-core/internal/models"
	"github.com/ssmtariq/telemetry-core/internal/telemetry"
)

const previousPointLookbackMs = 365 * 24 * 60 * 60 * 1000

// EntityDataSubCtx is the subscription context for entity data commands:
// a resolved entity page plus latest-value, time-series and history
// sub-commands against it.
type EntityDataSubCtx struct {
	baseSubCtx
	engine      *aggregation.Engine
	resolver    entity.Resolver
	attrs       database.AttributeStore
	maxEntities int
	now         func() int64

	// guarded by mu
	query      *models.EntityDataQuery
	data       []models.EntityData
	latestKeys []string
	attrKeys   []string
	tsKeys     []string
}

func newEntityDataSubCtx(
	log *logrus.Logger,
	sessionID string,
	cmdID int,
	channel MessageChannel,
	hub telemetry.Manager,
	engine *aggregation.Engine,
	resolver entity.Resolver,
	attrs database.AttributeStore,
	maxEntities int,
	now func() int64,
) *EntityDataSubCtx {
	return &EntityDataSubCtx{
		baseSubCtx:  newBaseSubCtx(log, sessionID, cmdID, channel, hub),
		engine:      engine,
		resolver:    resolver,
		attrs:       attrs,
		maxEntities: maxEntities,
		now:         now,
	}
}

// SetAndResolveQuery resolves the declarative query into a concrete
// entity snapshot. Re-entrant: a repeated command with the same id
// replaces the previous resolution.
func (c *EntityDataSubCtx) SetAndResolveQuery(ctx context.Context, q models.EntityDataQuery) error {
	entities, err := c.resolver.Resolve(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to resolve query: %w", err)
	}
	if len(entities) > c.maxEntities {
		entities = entities[:c.maxEntities]
	}
	c.mu.Lock()
	c.query = &q
	c.data = entities
	c.mu.Unlock()
	return nil
}

// IsDynamic reports whether the resolved query needs periodic refresh.
func (c *EntityDataSubCtx) IsDynamic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query != nil && c.query.IsDynamic()
}

// FetchData performs the initial full read: latest values of the query's
// latest keys, merged with any extra keys requested by the command,
// across all resolved entities.
func (c *EntityDataSubCtx) FetchData(ctx context.Context, extraKeys ...string) error {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return nil
	}
	c.query.LatestValues = mergeKeys(c.query.LatestValues, extraKeys)
	keys := append([]string(nil), c.query.LatestValues...)
	ids := c.entityIDsLocked()
	c.mu.Unlock()

	if len(keys) == 0 || len(ids) == 0 {
		return nil
	}
	latest, err := c.fetchLatest(ctx, ids, keys)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.applyLatestLocked(latest)
	c.mu.Unlock()
	return nil
}

// ProcessLatest backfills latest values for the requested keys, replaces
// the latest-value live subscriptions and sends the snapshot (full on
// first send, delta afterwards).
func (c *EntityDataSubCtx) ProcessLatest(ctx context.Context, cmd LatestValueCmd) error {
	c.mu.Lock()
	ids := c.entityIDsLocked()
	c.mu.Unlock()

	latest, err := c.fetchLatest(ctx, ids, cmd.Keys)
	if err != nil {
		return err
	}
	attrs := map[string]map[string]models.TsValue{}
	if len(cmd.AttributeKeys) > 0 && c.attrs != nil {
		for _, id := range ids {
			samples, err := c.attrs.FindAttributes(ctx, id, cmd.AttributeKeys)
			if err != nil {
				return fmt.Errorf("failed to fetch attributes: %w", err)
			}
			values := make(map[string]models.TsValue, len(samples))
			for _, s := range samples {
				values[s.Key] = models.TsValue{Ts: s.Ts, Value: s.ValueAsString()}
			}
			attrs[id] = values
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return nil
	}
	c.applyLatestLocked(latest)
	c.applyLatestLocked(attrs)
	c.latestKeys = append([]string(nil), cmd.Keys...)
	c.attrKeys = append([]string(nil), cmd.AttributeKeys...)
	c.createLatestSubscriptionsLocked()
	c.sendLocked(c.snapshotUpdateLocked())
	return nil
}

// ProcessTimeSeries fetches a rolling window ending now and subscribes to
// subsequent samples of the same keys.
func (c *EntityDataSubCtx) ProcessTimeSeries(ctx context.Context, cmd TimeSeriesCmd) error {
	end := c.now()
	return c.processGetTs(ctx, getTsParams{
		keys:       cmd.Keys,
		startTs:    end - cmd.TimeWindowMs,
		endTs:      end,
		intervalMs: cmd.IntervalMs,
		limit:      cmd.Limit,
		agg:        cmd.Agg,
		fetchPrev:  cmd.FetchLatestPreviousPoint,
		subscribe:  true,
	})
}

// ProcessHistory fetches a fixed range once, without subscribing.
func (c *EntityDataSubCtx) ProcessHistory(ctx context.Context, cmd EntityHistoryCmd) error {
	return c.processGetTs(ctx, getTsParams{
		keys:       cmd.Keys,
		startTs:    cmd.StartTs,
		endTs:      cmd.EndTs,
		intervalMs: cmd.IntervalMs,
		limit:      cmd.Limit,
		agg:        cmd.Agg,
		fetchPrev:  cmd.FetchLatestPreviousPoint,
	})
}

type getTsParams struct {
	keys       []string
	startTs    int64
	endTs      int64
	intervalMs int64
	limit      int
	agg        models.Aggregation
	fetchPrev  bool
	subscribe  bool
}

func (c *EntityDataSubCtx) processGetTs(ctx context.Context, p getTsParams) error {
	if p.agg == "" {
		p.agg = models.AggNone
	}
	c.mu.Lock()
	ids := c.entityIDsLocked()
	c.mu.Unlock()

	results := make([]map[string][]models.TsValue, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			keyData := make(map[string][]models.TsValue, len(p.keys))
			for _, key := range p.keys {
				values, err := c.engine.FindAll(gctx, id, models.ReadQuery{
					Key:        key,
					StartTs:    p.startTs,
					EndTs:      p.endTs,
					IntervalMs: p.intervalMs,
					Limit:      p.limit,
					Order:      models.OrderDesc,
					Agg:        p.agg,
				})
				if err != nil {
					return err
				}
				if p.fetchPrev {
					prev, err := c.engine.FindAll(gctx, id, models.ReadQuery{
						Key:        key,
						StartTs:    p.startTs - previousPointLookbackMs,
						EndTs:      p.startTs,
						IntervalMs: p.intervalMs,
						Limit:      1,
						Order:      models.OrderDesc,
						Agg:        p.agg,
					})
					if err != nil {
						return err
					}
					values = append(values, prev...)
					sort.Slice(values, func(a, b int) bool { return values[a].Ts > values[b].Ts })
				}
				keyData[key] = values
			}
			results[i] = keyData
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to fetch time-series data: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return nil
	}
	byID := make(map[string]int, len(ids))
	for i, id := range ids {
		byID[id] = i
	}
	for i := range c.data {
		slot, ok := byID[c.data[i].EntityID]
		if !ok {
			continue
		}
		if c.data[i].Timeseries == nil {
			c.data[i].Timeseries = make(map[string][]models.TsValue)
		}
		for _, key := range p.keys {
			c.data[i].Timeseries[key] = results[slot][key]
		}
	}
	if p.subscribe {
		c.tsKeys = append([]string(nil), p.keys...)
		c.createTimeseriesSubscriptionsLocked(p.keys, p.startTs)
	}
	c.sendLocked(c.snapshotUpdateLocked())
	// Time-series payloads are delivered, not retained: subsequent deltas
	// carry only new samples.
	for i := range c.data {
		c.data[i].Timeseries = make(map[string][]models.TsValue)
	}
	return nil
}

// Update is the scheduler entry point: re-resolve the dynamic query and
// push a delta only if the entity set changed. An unchanged set is a
// cheap no-op and emits nothing.
func (c *EntityDataSubCtx) Update(ctx context.Context) error {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return nil
	}
	q := *c.query
	prevIDs := c.entityIDsLocked()
	c.mu.Unlock()

	entities, err := c.resolver.Resolve(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to refresh query: %w", err)
	}
	if len(entities) > c.maxEntities {
		entities = entities[:c.maxEntities]
	}
	if sameIDs(prevIDs, entities) {
		return nil
	}

	var latest map[string]map[string]models.TsValue
	if len(q.LatestValues) > 0 {
		ids := make([]string, len(entities))
		for i, e := range entities {
			ids[i] = e.EntityID
		}
		latest, err = c.fetchLatest(ctx, ids, q.LatestValues)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return nil
	}
	c.data = entities
	c.applyLatestLocked(latest)
	// Re-point live subscriptions at the new entity set. Time-series
	// streams resume from the refresh point.
	ids := c.subIDs
	c.subIDs = nil
	for _, id := range ids {
		c.hub.Cancel(id)
	}
	c.createLatestSubscriptionsLocked()
	if len(c.tsKeys) > 0 {
		c.createTimeseriesSubscriptionsLocked(c.tsKeys, c.now())
	}
	c.sendLocked(c.snapshotUpdateLocked())
	return nil
}

// SendInitialIfNeeded sends the full snapshot if it was not sent yet.
func (c *EntityDataSubCtx) SendInitialIfNeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialDataSent || c.stopped.Load() {
		return
	}
	c.sendLocked(c.snapshotUpdateLocked())
}

// snapshotUpdateLocked composes the next outbound update: the full
// snapshot exactly once per context, deltas afterwards. Caller holds mu.
func (c *EntityDataSubCtx) snapshotUpdateLocked() *EntityDataUpdate {
	if !c.initialDataSent {
		c.initialDataSent = true
		page := models.PageData[models.EntityData]{
			Data:          c.data,
			TotalPages:    1,
			TotalElements: int64(len(c.data)),
		}
		return &EntityDataUpdate{CmdID: c.cmdID, Data: &page, AllowedEntities: c.maxEntities}
	}
	return &EntityDataUpdate{CmdID: c.cmdID, Update: c.data, AllowedEntities: c.maxEntities}
}

func (c *EntityDataSubCtx) createLatestSubscriptionsLocked() {
	if len(c.latestKeys) == 0 {
		return
	}
	keys := keySet(c.latestKeys)
	for _, e := range c.data {
		id := c.hub.Subscribe(&telemetry.Subscription{
			SessionID: c.sessionID,
			EntityID:  e.EntityID,
			Keys:      keys,
			Latest:    true,
			OnUpdate:  c.onLatestUpdate,
		})
		c.addSubscriptionLocked(id)
	}
}

func (c *EntityDataSubCtx) createTimeseriesSubscriptionsLocked(keys []string, startTs int64) {
	set := keySet(keys)
	for _, e := range c.data {
		id := c.hub.Subscribe(&telemetry.Subscription{
			SessionID: c.sessionID,
			EntityID:  e.EntityID,
			Keys:      set,
			StartTs:   startTs,
			OnUpdate:  c.onTimeseriesUpdate,
		})
		c.addSubscriptionLocked(id)
	}
}

func (c *EntityDataSubCtx) onLatestUpdate(entityID string, data map[string][]models.TsValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return
	}
	latest := make(map[string]models.TsValue, len(data))
	for key, values := range data {
		latest[key] = values[len(values)-1]
	}
	for i := range c.data {
		if c.data[i].EntityID != entityID {
			continue
		}
		if c.data[i].Latest == nil {
			c.data[i].Latest = make(map[string]models.TsValue)
		}
		for key, v := range latest {
			c.data[i].Latest[key] = v
		}
	}
	c.sendLocked(&EntityDataUpdate{
		CmdID:           c.cmdID,
		Update:          []models.EntityData{{EntityID: entityID, Latest: latest}},
		AllowedEntities: c.maxEntities,
	})
}

func (c *EntityDataSubCtx) onTimeseriesUpdate(entityID string, data map[string][]models.TsValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return
	}
	c.sendLocked(&EntityDataUpdate{
		CmdID:           c.cmdID,
		Update:          []models.EntityData{{EntityID: entityID, Timeseries: data}},
		AllowedEntities: c.maxEntities,
	})
}

func (c *EntityDataSubCtx) fetchLatest(ctx context.Context, ids, keys []string) (map[string]map[string]models.TsValue, error) {
	if len(ids) == 0 || len(keys) == 0 {
		return nil, nil
	}
	results := make([]map[string]models.TsValue, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			values, err := c.engine.FindLatest(gctx, id, keys)
			if err != nil {
				return err
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch latest values: %w", err)
	}
	out := make(map[string]map[string]models.TsValue, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}

// applyLatestLocked merges fetched latest values into the snapshot.
// Caller holds mu.
func (c *EntityDataSubCtx) applyLatestLocked(latest map[string]map[string]models.TsValue) {
	for i := range c.data {
		values, ok := latest[c.data[i].EntityID]
		if !ok {
			continue
		}
		if c.data[i].Latest == nil {
			c.data[i].Latest = make(map[string]models.TsValue)
		}
		for key, v := range values {
			c.data[i].Latest[key] = v
		}
	}
}

// entityIDsLocked returns the snapshot's entity ids. Caller holds mu.
func (c *EntityDataSubCtx) entityIDsLocked() []string {
	ids := make([]string, len(c.data))
	for i, e := range c.data {
		ids[i] = e.EntityID
	}
	return ids
}

func mergeKeys(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, lst := range [][]string{base, extra} {
		for _, k := range lst {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func sameIDs(prev []string, next []models.EntityData) bool {
	if len(prev) != len(next) {
		return false
	}
	for i := range prev {
		if prev[i] != next[i].EntityID {
			return false
		}
	}
	return true
}
