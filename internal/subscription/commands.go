package subscription

import "github.com/ssmtariq/telemetry-core/internal/models"

// CommandEnvelope is one inbound websocket frame. A frame may carry
// several commands of mixed kinds.
type CommandEnvelope struct {
	EntityDataCmds  []EntityDataCmd  `json:"entityDataCmds,omitempty"`
	EntityCountCmds []EntityCountCmd `json:"entityCountCmds,omitempty"`
	AlarmDataCmds   []AlarmDataCmd   `json:"alarmDataCmds,omitempty"`
	UnsubscribeCmds []UnsubscribeCmd `json:"entityDataUnsubscribeCmds,omitempty"`
}

// EntityDataCmd creates or mutates one entity data subscription. All
// sub-commands are optional: a command may only re-subscribe to keys, or
// only fetch history.
type EntityDataCmd struct {
	CmdID      int                     `json:"cmdId"`
	Query      *models.EntityDataQuery `json:"query,omitempty"`
	LatestCmd  *LatestValueCmd         `json:"latestCmd,omitempty"`
	TsCmd      *TimeSeriesCmd          `json:"tsCmd,omitempty"`
	HistoryCmd *EntityHistoryCmd       `json:"historyCmd,omitempty"`
}

// LatestValueCmd subscribes to the newest value of time-series keys and
// optionally backfills entity attributes once.
type LatestValueCmd struct {
	Keys          []string `json:"keys"`
	AttributeKeys []string `json:"attributeKeys,omitempty"`
}

// TimeSeriesCmd fetches a rolling window ending now and subscribes to
// subsequent samples of the same keys.
type TimeSeriesCmd struct {
	Keys                     []string           `json:"keys"`
	TimeWindowMs             int64              `json:"timeWindow"`
	IntervalMs               int64              `json:"interval,omitempty"`
	Limit                    int                `json:"limit,omitempty"`
	Agg                      models.Aggregation `json:"agg,omitempty"`
	FetchLatestPreviousPoint bool               `json:"fetchLatestPreviousPoint,omitempty"`
}

// EntityHistoryCmd fetches a fixed time range once, without subscribing.
type EntityHistoryCmd struct {
	Keys                     []string           `json:"keys"`
	StartTs                  int64              `json:"startTs"`
	EndTs                    int64              `json:"endTs"`
	IntervalMs               int64              `json:"interval,omitempty"`
	Limit                    int                `json:"limit,omitempty"`
	Agg                      models.Aggregation `json:"agg,omitempty"`
	FetchLatestPreviousPoint bool               `json:"fetchLatestPreviousPoint,omitempty"`
}

// EntityCountCmd subscribes to the count of entities matching a filter.
// Count subscriptions are always dynamic.
type EntityCountCmd struct {
	CmdID int                     `json:"cmdId"`
	Query *models.EntityDataQuery `json:"query,omitempty"`
}

// AlarmDataCmd subscribes to alarms of the entities matching a filter.
type AlarmDataCmd struct {
	CmdID int                    `json:"cmdId"`
	Query *models.AlarmDataQuery `json:"query"`
}

// UnsubscribeCmd tears down the subscription with the given command id.
type UnsubscribeCmd struct {
	CmdID int `json:"cmdId"`
}
