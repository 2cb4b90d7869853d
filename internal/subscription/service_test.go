package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssmtariq/telemetry-core/internal/aggregation"
	"github.com/ssmtariq/telemetry-core/internal/database/mocks"
	"github.com/ssmtariq/telemetry-core/internal/models"
	"github.com/ssmtariq/telemetry-core/internal/telemetry"
)

// fakeChannel records outbound messages per session.
type fakeChannel struct {
	mu     sync.Mutex
	msgs   map[string][]any
	closed map[string]string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{msgs: map[string][]any{}, closed: map[string]string{}}
}

func (f *fakeChannel) Send(sessionID string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[sessionID] = append(f.msgs[sessionID], msg)
	return nil
}

func (f *fakeChannel) Close(sessionID string, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[sessionID] = reason
}

func (f *fakeChannel) messages(sessionID string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.msgs[sessionID]...)
}

// fakeResolver serves canned entities and counts.
type fakeResolver struct {
	mu       sync.Mutex
	entities []models.EntityData
	count    int64
	err      error
}

func (f *fakeResolver) Resolve(context.Context, models.EntityDataQuery) ([]models.EntityData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.EntityData(nil), f.entities...), nil
}

func (f *fakeResolver) Count(context.Context, models.EntityDataQuery) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func (f *fakeResolver) setCount(n int64) {
	f.mu.Lock()
	f.count = n
	f.mu.Unlock()
}

func (f *fakeResolver) setEntities(entities []models.EntityData) {
	f.mu.Lock()
	f.entities = entities
	f.mu.Unlock()
}

func serviceLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestService(t *testing.T, resolver *fakeResolver, alarms *mocks.MockAlarmStore) (*Service, *fakeChannel) {
	t.Helper()
	channel := newFakeChannel()
	cfg := DefaultConfig()
	// Keep the scheduler quiet; refresh paths are driven directly.
	cfg.RefreshInterval = time.Hour
	svc := NewService(cfg, Deps{
		Registry: NewRegistry(),
		Resolver: resolver,
		Alarms:   alarms,
		Hub:      telemetry.NewHub(serviceLogger()),
		Channel:  channel,
		Stats:    NewStats(prometheus.NewRegistry()),
		Log:      serviceLogger(),
	})
	t.Cleanup(svc.Stop)
	return svc, channel
}

func TestHandleEntityCountCmd(t *testing.T) {
	resolver := &fakeResolver{count: 5}
	svc, channel := newTestService(t, resolver, nil)

	cmd := EntityCountCmd{CmdID: 1, Query: &models.EntityDataQuery{
		Filter: models.EntityFilter{EntityType: "DEVICE"},
	}}
	svc.HandleEntityCountCmd(context.Background(), "s1", cmd)

	msgs := channel.messages("s1")
	require.Len(t, msgs, 1)
	update, ok := msgs[0].(*EntityCountUpdate)
	require.True(t, ok)
	assert.Equal(t, 1, update.CmdID)
	assert.Equal(t, int64(5), update.Count)
	assert.True(t, svc.registry.Has("s1", 1))
}

func TestHandleEntityCountCmdDuplicateIgnored(t *testing.T) {
	resolver := &fakeResolver{count: 5}
	svc, channel := newTestService(t, resolver, nil)

	cmd := EntityCountCmd{CmdID: 1, Query: &models.EntityDataQuery{
		Filter: models.EntityFilter{EntityType: "DEVICE"},
	}}
	svc.HandleEntityCountCmd(context.Background(), "s1", cmd)
	first, ok := svc.registry.Get("s1", 1)
	require.True(t, ok)

	// A repeated count command with the same id is ignored, never merged.
	svc.HandleEntityCountCmd(context.Background(), "s1", cmd)

	assert.Len(t, channel.messages("s1"), 1)
	second, ok := svc.registry.Get("s1", 1)
	require.True(t, ok)
	assert.Same(t, first, second)
}

func TestCountRefreshPushesOnlyOnChange(t *testing.T) {
	resolver := &fakeResolver{count: 5}
	svc, channel := newTestService(t, resolver, nil)

	svc.HandleEntityCountCmd(context.Background(), "s1", EntityCountCmd{
		CmdID: 1, Query: &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "DEVICE"}},
	})
	require.Len(t, channel.messages("s1"), 1)

	c, ok := svc.registry.Get("s1", 1)
	require.True(t, ok)
	countCtx := c.(*EntityCountSubCtx)

	// Unchanged count: tick emits nothing.
	assert.True(t, svc.refreshDynamicQuery(countCtx))
	assert.Len(t, channel.messages("s1"), 1)

	resolver.setCount(7)
	assert.True(t, svc.refreshDynamicQuery(countCtx))
	msgs := channel.messages("s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(7), msgs[1].(*EntityCountUpdate).Count)
}

func TestRefreshStopsUnregisteredContext(t *testing.T) {
	resolver := &fakeResolver{count: 5}
	svc, _ := newTestService(t, resolver, nil)

	svc.HandleEntityCountCmd(context.Background(), "s1", EntityCountCmd{
		CmdID: 1, Query: &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "DEVICE"}},
	})
	c, ok := svc.registry.Get("s1", 1)
	require.True(t, ok)

	svc.HandleUnsubscribeCmd("s1", UnsubscribeCmd{CmdID: 1})

	// The tick that raced the unsubscribe must not re-arm.
	assert.False(t, svc.refreshDynamicQuery(c.(*EntityCountSubCtx)))
	assert.True(t, c.IsStopped())
}

func TestHandleUnsubscribeCmdIsIdempotent(t *testing.T) {
	resolver := &fakeResolver{count: 5}
	svc, channel := newTestService(t, resolver, nil)

	svc.HandleEntityCountCmd(context.Background(), "s1", EntityCountCmd{
		CmdID: 1, Query: &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "DEVICE"}},
	})
	c, ok := svc.registry.Get("s1", 1)
	require.True(t, ok)

	svc.HandleUnsubscribeCmd("s1", UnsubscribeCmd{CmdID: 1})
	require.True(t, c.IsStopped())
	require.Equal(t, 0, svc.registry.Count())

	// A second unsubscribe for the same command, and a direct second
	// stop, have no further effect.
	svc.HandleUnsubscribeCmd("s1", UnsubscribeCmd{CmdID: 1})
	c.Stop()

	// The stopped context never pushes again, even when the count changes.
	resolver.setCount(9)
	assert.False(t, svc.refreshDynamicQuery(c.(*EntityCountSubCtx)))
	assert.Len(t, channel.messages("s1"), 1)
}

func TestHandleUnsubscribeCmdUnknownIsNoop(t *testing.T) {
	svc, channel := newTestService(t, &fakeResolver{}, nil)

	svc.HandleUnsubscribeCmd("s1", UnsubscribeCmd{CmdID: 99})

	assert.Empty(t, channel.messages("s1"))
	assert.Equal(t, 0, svc.registry.Count())
}

func TestCancelSessionSubscriptions(t *testing.T) {
	resolver := &fakeResolver{count: 5}
	svc, _ := newTestService(t, resolver, nil)

	query := &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "DEVICE"}}
	svc.HandleEntityCountCmd(context.Background(), "s1", EntityCountCmd{CmdID: 1, Query: query})
	svc.HandleEntityCountCmd(context.Background(), "s1", EntityCountCmd{CmdID: 2, Query: query})
	a, _ := svc.registry.Get("s1", 1)
	b, _ := svc.registry.Get("s1", 2)

	svc.CancelSessionSubscriptions("s1")

	assert.Equal(t, 0, svc.registry.Count())
	assert.True(t, a.IsStopped())
	assert.True(t, b.IsStopped())
}

func TestHandleEntityDataCmdResolveFailureKeepsContext(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("filter references unknown entity type")}
	svc, channel := newTestService(t, resolver, nil)

	svc.HandleEntityDataCmd(context.Background(), "s1", EntityDataCmd{
		CmdID: 3, Query: &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "NOPE"}},
	})

	msgs := channel.messages("s1")
	require.Len(t, msgs, 1)
	update, ok := msgs[0].(*EntityDataUpdate)
	require.True(t, ok)
	assert.Equal(t, ErrCodeBadRequest, update.ErrCode)
	assert.NotEmpty(t, update.ErrMsg)

	// The context stays registered so a corrected retry reuses it.
	assert.True(t, svc.registry.Has("s1", 3))
}

func TestHandleEntityDataCmdSendsInitialSnapshot(t *testing.T) {
	resolver := &fakeResolver{entities: []models.EntityData{
		models.NewEntityData("dev-1"),
		models.NewEntityData("dev-2"),
	}}
	svc, channel := newTestService(t, resolver, nil)

	svc.HandleEntityDataCmd(context.Background(), "s1", EntityDataCmd{
		CmdID: 4, Query: &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "DEVICE"}},
	})

	msgs := channel.messages("s1")
	require.Len(t, msgs, 1)
	update, ok := msgs[0].(*EntityDataUpdate)
	require.True(t, ok)
	require.NotNil(t, update.Data)
	assert.Equal(t, int64(2), update.Data.TotalElements)
	assert.Nil(t, update.Update)

	// Repeating the command must not resend the full snapshot.
	svc.HandleEntityDataCmd(context.Background(), "s1", EntityDataCmd{CmdID: 4})
	assert.Len(t, channel.messages("s1"), 1)
}

func TestDynamicRefreshKeepsTimeSeriesSubscriptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockTimeSeriesStore(ctrl)
	store.EXPECT().
		FindRange(gomock.Any(), gomock.Any(), "temperature", gomock.Any(), gomock.Any(), gomock.Any(), models.OrderDesc).
		Return(nil, nil).
		AnyTimes()

	resolver := &fakeResolver{entities: []models.EntityData{models.NewEntityData("dev-1")}}
	channel := newFakeChannel()
	hub := telemetry.NewHub(serviceLogger())
	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Hour
	svc := NewService(cfg, Deps{
		Registry: NewRegistry(),
		Engine:   aggregation.NewEngine(store, 100, serviceLogger()),
		Resolver: resolver,
		Hub:      hub,
		Channel:  channel,
		Stats:    NewStats(prometheus.NewRegistry()),
		Log:      serviceLogger(),
	})
	defer svc.Stop()

	svc.HandleEntityDataCmd(context.Background(), "s1", EntityDataCmd{
		CmdID: 8,
		Query: &models.EntityDataQuery{Filter: models.EntityFilter{EntityType: "DEVICE"}},
		TsCmd: &TimeSeriesCmd{Keys: []string{"temperature"}, TimeWindowMs: 60000},
	})
	c, ok := svc.registry.Get("s1", 8)
	require.True(t, ok)

	// The resolved entity set changes on the next tick; the time-series
	// stream must follow it.
	resolver.setEntities([]models.EntityData{models.NewEntityData("dev-2")})
	require.True(t, svc.refreshDynamicQuery(c.(*EntityDataSubCtx)))
	before := len(channel.messages("s1"))

	temp := 23.5
	sample := models.Sample{Key: "temperature", Ts: time.Now().UnixMilli() + 1000, NumVal: &temp}
	hub.OnTimeSeriesUpdate("dev-2", []models.Sample{sample})

	msgs := channel.messages("s1")
	require.Len(t, msgs, before+1)
	update, ok := msgs[len(msgs)-1].(*EntityDataUpdate)
	require.True(t, ok)
	require.Len(t, update.Update, 1)
	assert.Equal(t, "dev-2", update.Update[0].EntityID)
	assert.Contains(t, update.Update[0].Timeseries, "temperature")

	// The replaced entity no longer pushes.
	hub.OnTimeSeriesUpdate("dev-1", []models.Sample{sample})
	assert.Len(t, channel.messages("s1"), before+1)
}

func TestHandleAlarmDataCmdEmptyEntities(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	alarms := mocks.NewMockAlarmStore(ctrl)
	// No entities matched: no alarm fetch may happen.

	resolver := &fakeResolver{}
	svc, channel := newTestService(t, resolver, alarms)

	svc.HandleAlarmDataCmd(context.Background(), "s1", AlarmDataCmd{
		CmdID: 5,
		Query: &models.AlarmDataQuery{
			Filter:   models.EntityFilter{EntityType: "DEVICE"},
			PageLink: models.PageLink{TimeWindowMs: 60000},
		},
	})

	msgs := channel.messages("s1")
	require.Len(t, msgs, 1)
	update, ok := msgs[0].(*AlarmDataUpdate)
	require.True(t, ok)
	require.NotNil(t, update.Data)
	assert.Empty(t, update.Data.Data)
	assert.Equal(t, int64(0), update.Data.TotalElements)

	// No refresh is scheduled for a context with no entities.
	c, ok := svc.registry.Get("s1", 5)
	require.True(t, ok)
	alarmCtx := c.(*AlarmDataSubCtx)
	alarmCtx.mu.Lock()
	assert.Nil(t, alarmCtx.refreshTask)
	alarmCtx.mu.Unlock()
}

func TestHandleAlarmDataCmdFetchesAndSchedules(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	alarms := mocks.NewMockAlarmStore(ctrl)

	page := models.PageData[models.AlarmData]{
		Data:          []models.AlarmData{{ID: "a1", EntityID: "dev-1", Type: "HighTemperature"}},
		TotalPages:    1,
		TotalElements: 1,
	}
	alarms.EXPECT().
		FindAlarms(gomock.Any(), []string{"dev-1", "dev-2"}, gomock.Any(), gomock.Any()).
		Return(page, nil)

	resolver := &fakeResolver{entities: []models.EntityData{
		models.NewEntityData("dev-1"),
		models.NewEntityData("dev-2"),
	}}
	svc, channel := newTestService(t, resolver, alarms)

	svc.HandleAlarmDataCmd(context.Background(), "s1", AlarmDataCmd{
		CmdID: 6,
		Query: &models.AlarmDataQuery{
			Filter:   models.EntityFilter{EntityType: "DEVICE"},
			PageLink: models.PageLink{TimeWindowMs: 60000},
		},
	})

	msgs := channel.messages("s1")
	require.Len(t, msgs, 1)
	update, ok := msgs[0].(*AlarmDataUpdate)
	require.True(t, ok)
	assert.Equal(t, 2, update.TotalEntities)
	require.NotNil(t, update.Data)
	assert.Len(t, update.Data.Data, 1)

	c, ok := svc.registry.Get("s1", 6)
	require.True(t, ok)
	alarmCtx := c.(*AlarmDataSubCtx)
	alarmCtx.mu.Lock()
	assert.NotNil(t, alarmCtx.refreshTask)
	alarmCtx.mu.Unlock()
}

func TestAlarmQueryRateLimiting(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	alarms := mocks.NewMockAlarmStore(ctrl)

	resolver := &fakeResolver{entities: []models.EntityData{models.NewEntityData("dev-1")}}
	channel := newFakeChannel()
	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Hour
	cfg.MaxAlarmQueriesPerRefreshInterval = 2
	svc := NewService(cfg, Deps{
		Registry: NewRegistry(),
		Resolver: resolver,
		Alarms:   alarms,
		Hub:      telemetry.NewHub(serviceLogger()),
		Channel:  channel,
		Stats:    NewStats(prometheus.NewRegistry()),
		Log:      serviceLogger(),
	})
	defer svc.Stop()

	// Initial fetch plus two forced queries inside the budget, then the
	// catch-up fetch triggered by the over-budget tick.
	alarms.EXPECT().
		FindAlarms(gomock.Any(), []string{"dev-1"}, gomock.Any(), gomock.Any()).
		Return(models.EmptyPage[models.AlarmData](), nil).
		Times(4)

	svc.HandleAlarmDataCmd(context.Background(), "s1", AlarmDataCmd{
		CmdID: 7,
		Query: &models.AlarmDataQuery{
			Filter:   models.EntityFilter{EntityType: "DEVICE"},
			PageLink: models.PageLink{TimeWindowMs: 60000},
		},
	})
	c, ok := svc.registry.Get("s1", 7)
	require.True(t, ok)
	alarmCtx := c.(*AlarmDataSubCtx)

	// Telemetry pushes force re-queries; the third exceeds the budget
	// and is dropped.
	for i := 0; i < 3; i++ {
		alarmCtx.TryAlarmQuery(context.Background())
	}
	// The scheduler tick resets the counter and runs one catch-up fetch.
	require.NoError(t, alarmCtx.CheckAndResetInvocationCounter(context.Background()))
	// Nothing was dropped since the reset, so the next tick is a no-op.
	require.NoError(t, alarmCtx.CheckAndResetInvocationCounter(context.Background()))
}
