package subscription

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/entity"
	"github.com/ssmtariq/telemetry-core/internal/models"
	"github.com/ssmtariq/telemetry-core/internal/telemetry"
)

// EntityCountSubCtx is the count-only subscription context. Count
// subscriptions are always dynamic: the count is re-evaluated every
// refresh tick and pushed only when it changed.
type EntityCountSubCtx struct {
	baseSubCtx
	resolver entity.Resolver

	// guarded by mu
	query     *models.EntityDataQuery
	lastCount int64
	counted   bool
}

func newEntityCountSubCtx(
	log *logrus.Logger,
	sessionID string,
	cmdID int,
	channel MessageChannel,
	hub telemetry.Manager,
	resolver entity.Resolver,
) *EntityCountSubCtx {
	return &EntityCountSubCtx{
		baseSubCtx: newBaseSubCtx(log, sessionID, cmdID, channel, hub),
		resolver:   resolver,
	}
}

// SetQuery stores the declarative query. Counting happens on fetch.
func (c *EntityCountSubCtx) SetQuery(q models.EntityDataQuery) {
	c.mu.Lock()
	c.query = &q
	c.mu.Unlock()
}

// FetchData counts the matching entities and pushes the initial count.
func (c *EntityCountSubCtx) FetchData(ctx context.Context) error {
	count, err := c.count(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return nil
	}
	c.lastCount = count
	c.counted = true
	c.sendLocked(&EntityCountUpdate{CmdID: c.cmdID, Count: count})
	return nil
}

// Update re-evaluates the count and pushes only when it changed.
func (c *EntityCountSubCtx) Update(ctx context.Context) error {
	count, err := c.count(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return nil
	}
	if c.counted && count == c.lastCount {
		return nil
	}
	c.lastCount = count
	c.counted = true
	c.sendLocked(&EntityCountUpdate{CmdID: c.cmdID, Count: count})
	return nil
}

func (c *EntityCountSubCtx) count(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("count subscription has no query")
	}
	q := *c.query
	c.mu.Unlock()

	count, err := c.resolver.Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}
