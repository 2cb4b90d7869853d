// Package subscription implements live subscription management: per
// (session, command) contexts over resolved entity queries, delta pushes
// on telemetry writes and periodic refresh of dynamic queries.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/aggregation"
	"github.com/ssmtariq/telemetry-core/internal/database"
	"github.com/ssmtariq/telemetry-core/internal/entity"
	"github.com/ssmtariq/telemetry-core/internal/telemetry"
)

// Config holds the subscription service tunables.
type Config struct {
	RefreshInterval                   time.Duration
	RefreshPoolSize                   int
	MaxEntitiesPerDataSubscription    int
	MaxEntitiesPerAlarmSubscription   int
	MaxAlarmQueriesPerRefreshInterval int
	StatsIntervalSeconds              int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:                   6 * time.Second,
		RefreshPoolSize:                   1,
		MaxEntitiesPerDataSubscription:    1000,
		MaxEntitiesPerAlarmSubscription:   1000,
		MaxAlarmQueriesPerRefreshInterval: 10,
		StatsIntervalSeconds:              10,
	}
}

// Deps are the collaborators the service orchestrates. The registry is an
// explicit owned component, constructed once and passed in, never ambient
// state.
type Deps struct {
	Registry *Registry
	Engine   *aggregation.Engine
	Resolver entity.Resolver
	Alarms   database.AlarmStore
	Attrs    database.AttributeStore
	Hub      telemetry.Manager
	Channel  MessageChannel
	Stats    *Stats
	Log      *logrus.Logger
	Now      func() int64
}

// Service receives inbound subscribe/unsubscribe commands, creates and
// mutates subscription contexts through the registry, fetches data via
// the aggregation engine and schedules periodic refresh for dynamic
// queries.
type Service struct {
	cfg       Config
	registry  *Registry
	scheduler *Scheduler
	engine    *aggregation.Engine
	resolver  entity.Resolver
	alarms    database.AlarmStore
	attrs     database.AttributeStore
	hub       telemetry.Manager
	channel   MessageChannel
	stats     *Stats
	cron      *cron.Cron
	log       *logrus.Logger
	now       func() int64
}

// NewService creates the orchestrator and its refresh scheduler.
func NewService(cfg Config, deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Service{
		cfg:       cfg,
		registry:  deps.Registry,
		scheduler: NewScheduler(cfg.RefreshInterval, cfg.RefreshPoolSize, deps.Log),
		engine:    deps.Engine,
		resolver:  deps.Resolver,
		alarms:    deps.Alarms,
		attrs:     deps.Attrs,
		hub:       deps.Hub,
		channel:   deps.Channel,
		stats:     deps.Stats,
		cron:      cron.New(),
		log:       deps.Log,
		now:       now,
	}
}

// Start begins periodic stats reporting.
func (s *Service) Start() error {
	spec := fmt.Sprintf("@every %ds", s.cfg.StatsIntervalSeconds)
	_, err := s.cron.AddFunc(spec, func() {
		s.stats.Report(s.log, s.registry.Count())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop cancels the stats reporter and all scheduled refresh tasks.
func (s *Service) Stop() {
	s.cron.Stop()
	s.scheduler.Stop()
}

// HandleEntityDataCmd processes one entity data command: create or mutate
// the context, resolve and fetch, schedule refresh for dynamic queries,
// then run the history / latest / time-series sub-commands.
func (s *Service) HandleEntityDataCmd(ctx context.Context, sessionID string, cmd EntityDataCmd) {
	defer s.recoverCmd(sessionID, cmd.CmdID)

	var c *EntityDataSubCtx
	if existing, ok := s.registry.Get(sessionID, cmd.CmdID); ok {
		c, ok = existing.(*EntityDataSubCtx)
		if !ok {
			s.log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
				Warn("Command id already in use by another subscription type")
			s.sendError(sessionID, cmd.CmdID, ErrCodeBadRequest, "Command id already in use")
			return
		}
		s.log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
			Debug("Updating existing subscription")
		if cmd.LatestCmd != nil || cmd.TsCmd != nil || cmd.HistoryCmd != nil {
			c.ClearEntitySubscriptions()
		}
	} else {
		s.log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
			Debug("Creating new subscription")
		c = newEntityDataSubCtx(s.log, sessionID, cmd.CmdID, s.channel, s.hub,
			s.engine, s.resolver, s.attrs, s.cfg.MaxEntitiesPerDataSubscription, s.now)
		s.registry.Put(c)
	}

	if cmd.Query != nil {
		if err := c.SetAndResolveQuery(ctx, *cmd.Query); err != nil {
			// Resolution failure leaves the context intact so the client
			// may retry with a corrected query.
			s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
				Warn("Failed to resolve entity data query")
			s.sendError(sessionID, cmd.CmdID, ErrCodeBadRequest, "Failed to resolve query")
			return
		}
		var extraKeys []string
		if cmd.LatestCmd != nil {
			extraKeys = cmd.LatestCmd.Keys
		}
		start := time.Now()
		err := c.FetchData(ctx, extraKeys...)
		s.stats.RecordRegularQuery(time.Since(start))
		if err != nil {
			s.sendError(sessionID, cmd.CmdID, ErrCodeInternal, "Failed to fetch entity data")
			return
		}
		c.CancelRefreshTask()
		if c.IsDynamic() {
			c.SetRefreshTask(s.scheduler.ScheduleWithFixedDelay(func() bool {
				return s.refreshDynamicQuery(c)
			}))
		}
	}

	if cmd.HistoryCmd != nil {
		if err := c.ProcessHistory(ctx, *cmd.HistoryCmd); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
				Warn("Failed to fetch historical data")
			s.sendError(sessionID, cmd.CmdID, ErrCodeInternal, "Failed to fetch historical data")
			return
		}
	}
	if cmd.LatestCmd != nil {
		if err := c.ProcessLatest(ctx, *cmd.LatestCmd); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
				Warn("Failed to fetch latest values")
			s.sendError(sessionID, cmd.CmdID, ErrCodeInternal, "Failed to fetch latest values")
			return
		}
	}
	if cmd.TsCmd != nil {
		if err := c.ProcessTimeSeries(ctx, *cmd.TsCmd); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
				Warn("Failed to fetch time-series data")
			s.sendError(sessionID, cmd.CmdID, ErrCodeInternal, "Failed to fetch time-series data")
			return
		}
	}
	if cmd.LatestCmd == nil && cmd.TsCmd == nil {
		c.SendInitialIfNeeded()
	}
}

// HandleEntityCountCmd processes one entity count command. A duplicate
// command id on a live session is logged and ignored, never merged.
func (s *Service) HandleEntityCountCmd(ctx context.Context, sessionID string, cmd EntityCountCmd) {
	defer s.recoverCmd(sessionID, cmd.CmdID)

	if _, ok := s.registry.Get(sessionID, cmd.CmdID); ok {
		s.log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
			Debug("Received duplicate entity count command")
		return
	}
	c := newEntityCountSubCtx(s.log, sessionID, cmd.CmdID, s.channel, s.hub, s.resolver)
	if cmd.Query != nil {
		c.SetQuery(*cmd.Query)
	}
	s.registry.Put(c)

	start := time.Now()
	err := c.FetchData(ctx)
	s.stats.RecordRegularQuery(time.Since(start))
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
			Warn("Failed to fetch entity count")
		s.sendError(sessionID, cmd.CmdID, ErrCodeInternal, "Failed to fetch entity count")
		return
	}
	// Count subscriptions are always dynamic.
	c.SetRefreshTask(s.scheduler.ScheduleWithFixedDelay(func() bool {
		return s.refreshDynamicQuery(c)
	}))
}

// HandleAlarmDataCmd processes one alarm data command.
func (s *Service) HandleAlarmDataCmd(ctx context.Context, sessionID string, cmd AlarmDataCmd) {
	defer s.recoverCmd(sessionID, cmd.CmdID)

	if cmd.Query == nil {
		s.sendError(sessionID, cmd.CmdID, ErrCodeBadRequest, "Alarm command requires a query")
		return
	}
	var c *AlarmDataSubCtx
	if existing, ok := s.registry.Get(sessionID, cmd.CmdID); ok {
		c, ok = existing.(*AlarmDataSubCtx)
		if !ok {
			s.sendError(sessionID, cmd.CmdID, ErrCodeBadRequest, "Command id already in use")
			return
		}
	} else {
		s.log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
			Debug("Creating new alarm subscription")
		c = newAlarmDataSubCtx(s.log, sessionID, cmd.CmdID, s.channel, s.hub,
			s.resolver, s.alarms, s.cfg.MaxEntitiesPerAlarmSubscription,
			s.cfg.MaxAlarmQueriesPerRefreshInterval, s.now)
		s.registry.Put(c)
	}

	start := time.Now()
	err := c.SetAndResolveQuery(ctx, *cmd.Query)
	s.stats.RecordRegularQuery(time.Since(start))
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "cmd": cmd.CmdID}).
			Warn("Failed to resolve alarm query")
		s.sendError(sessionID, cmd.CmdID, ErrCodeBadRequest, "Failed to resolve query")
		return
	}
	c.CancelRefreshTask()
	c.ClearEntitySubscriptions()

	if c.EntityCount() == 0 {
		c.SendEmptyPage()
		return
	}
	start = time.Now()
	err = c.FetchAlarms(ctx)
	s.stats.RecordAlarmQuery(time.Since(start))
	if err != nil {
		s.sendError(sessionID, cmd.CmdID, ErrCodeInternal, "Failed to fetch alarms")
		return
	}
	c.CreateLatestValuesSubscriptions(cmd.Query.LatestValues)
	if cmd.Query.PageLink.TimeWindowMs > 0 {
		c.SetRefreshTask(s.scheduler.ScheduleWithFixedDelay(func() bool {
			return s.refreshAlarmQuery(c)
		}))
	}
}

// HandleUnsubscribeCmd tears down one subscription. Unknown ids are
// treated as already gone.
func (s *Service) HandleUnsubscribeCmd(sessionID string, cmd UnsubscribeCmd) {
	if c, ok := s.registry.Remove(sessionID, cmd.CmdID); ok {
		c.Stop()
	}
}

// CancelSessionSubscriptions tears down every subscription of a session.
func (s *Service) CancelSessionSubscriptions(sessionID string) {
	for _, c := range s.registry.RemoveSession(sessionID) {
		c.Stop()
	}
}

type refreshable interface {
	Context
	Update(ctx context.Context) error
}

// refreshDynamicQuery runs one scheduler tick for a dynamic context.
// Validation failure stops the context and the task is not re-armed.
func (s *Service) refreshDynamicQuery(c refreshable) bool {
	if !s.validate(c) {
		c.Stop()
		return false
	}
	start := time.Now()
	if err := c.Update(context.Background()); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session": c.SessionID(), "cmd": c.CmdID()}).
			Warn("Failed to refresh query")
	}
	s.stats.RecordDynamicQuery(time.Since(start))
	return true
}

func (s *Service) refreshAlarmQuery(c *AlarmDataSubCtx) bool {
	if !s.validate(c) {
		c.Stop()
		return false
	}
	start := time.Now()
	if err := c.CheckAndResetInvocationCounter(context.Background()); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session": c.SessionID(), "cmd": c.CmdID()}).
			Warn("Failed to refresh alarm query")
	}
	s.stats.RecordAlarmQuery(time.Since(start))
	return true
}

// validate checks the context is still live before a tick runs. Failures
// are an expected race between unsubscribe and an in-flight tick, so they
// are logged as warnings, never escalated.
func (s *Service) validate(c Context) bool {
	fields := logrus.Fields{"session": c.SessionID(), "cmd": c.CmdID()}
	if c.IsStopped() {
		s.log.WithFields(fields).Warn("Received validation task for already stopped context")
		return false
	}
	if !s.registry.HasSession(c.SessionID()) {
		s.log.WithFields(fields).Warn("Received validation task for already removed session")
		return false
	}
	if !s.registry.Has(c.SessionID(), c.CmdID()) {
		s.log.WithFields(fields).Warn("Received validation task for unregistered command id")
		return false
	}
	return true
}

func (s *Service) sendError(sessionID string, cmdID, code int, msg string) {
	if err := s.channel.Send(sessionID, errorUpdate(cmdID, code, msg)); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("Failed to send error update")
	}
}

// recoverCmd converts a command-processing panic into a channel close
// with a restart reason: a half-applied command must not leave the
// session attached to an undefined context.
func (s *Service) recoverCmd(sessionID string, cmdID int) {
	if r := recover(); r != nil {
		s.log.WithFields(logrus.Fields{"session": sessionID, "cmd": cmdID, "panic": r}).
			Error("Failed to process command")
		s.channel.Close(sessionID, CloseReasonRestart)
	}
}
