package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/telemetry"
)

// MessageChannel carries outbound updates to a client session. The
// transport owns delivery ordering per process; contexts only serialize
// their own pushes.
type MessageChannel interface {
	Send(sessionID string, msg any) error
	Close(sessionID string, reason string)
}

// baseSubCtx is the state shared by all subscription context variants:
// identity, the per-context mutex guarding snapshot mutation and message
// composition, the stopped flag, the refresh task handle and the set of
// live telemetry subscriptions.
//
// The mutex is the context's only hard serialization point: "snapshot,
// then mark initial-sent, then send" must be atomic with respect to a
// concurrent scheduler tick doing the same.
type baseSubCtx struct {
	log       *logrus.Entry
	sessionID string
	cmdID     int
	channel   MessageChannel
	hub       telemetry.Manager

	mu              sync.Mutex
	stopped         atomic.Bool
	refreshTask     *Task
	subIDs          []int
	initialDataSent bool
}

func newBaseSubCtx(log *logrus.Logger, sessionID string, cmdID int, channel MessageChannel, hub telemetry.Manager) baseSubCtx {
	return baseSubCtx{
		log:       log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmdID}),
		sessionID: sessionID,
		cmdID:     cmdID,
		channel:   channel,
		hub:       hub,
	}
}

func (c *baseSubCtx) SessionID() string { return c.sessionID }
func (c *baseSubCtx) CmdID() int        { return c.cmdID }
func (c *baseSubCtx) IsStopped() bool   { return c.stopped.Load() }

// Stop cancels the refresh task and live subscriptions and marks the
// context terminal. Stopping twice is a no-op.
func (c *baseSubCtx) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	c.CancelRefreshTask()
	c.ClearEntitySubscriptions()
	c.log.Debug("Subscription context stopped")
}

// SetRefreshTask installs a new periodic refresh handle, cancelling the
// previous one. A task installed after stop is cancelled immediately.
func (c *baseSubCtx) SetRefreshTask(t *Task) {
	c.mu.Lock()
	prev := c.refreshTask
	c.refreshTask = t
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	if c.stopped.Load() {
		t.Cancel()
	}
}

// CancelRefreshTask cancels the scheduled refresh, if any.
func (c *baseSubCtx) CancelRefreshTask() {
	c.mu.Lock()
	t := c.refreshTask
	c.refreshTask = nil
	c.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// ClearEntitySubscriptions cancels the live telemetry subscriptions
// registered for this context.
func (c *baseSubCtx) ClearEntitySubscriptions() {
	c.mu.Lock()
	ids := c.subIDs
	c.subIDs = nil
	c.mu.Unlock()
	for _, id := range ids {
		c.hub.Cancel(id)
	}
}

// addSubscriptionLocked records a registered subscription id. Caller
// holds mu.
func (c *baseSubCtx) addSubscriptionLocked(id int) {
	c.subIDs = append(c.subIDs, id)
}

// sendLocked delivers a message if the context is still live. Caller
// holds mu, which is what makes the liveness check and the send atomic
// with respect to Stop.
func (c *baseSubCtx) sendLocked(msg any) {
	if c.stopped.Load() {
		return
	}
	if err := c.channel.Send(c.sessionID, msg); err != nil {
		c.log.WithError(err).Warn("Failed to send update")
	}
}
