package subscription

import "github.com/ssmtariq/telemetry-core/internal/models"

// Subscription error codes carried on error updates.
const (
	ErrCodeNone         = 0
	ErrCodeUnauthorized = 1
	ErrCodeInternal     = 2
	ErrCodeBadRequest   = 3
)

// CloseReasonRestart is the channel close reason used when command
// processing fails half-way and the session must not stay attached to an
// undefined context.
const CloseReasonRestart = "SERVICE_RESTARTED"

// EntityDataUpdate is the outbound message for entity data subscriptions.
// Data carries the full snapshot (sent once per context); Update carries
// deltas for subsequent pushes.
type EntityDataUpdate struct {
	CmdID           int                                   `json:"cmdId"`
	Data            *models.PageData[models.EntityData]   `json:"data,omitempty"`
	Update          []models.EntityData                   `json:"update,omitempty"`
	AllowedEntities int                                   `json:"allowedEntities,omitempty"`
	ErrCode         int                                   `json:"errorCode,omitempty"`
	ErrMsg          string                                `json:"errorMsg,omitempty"`
}

func errorUpdate(cmdID, code int, msg string) *EntityDataUpdate {
	return &EntityDataUpdate{CmdID: cmdID, ErrCode: code, ErrMsg: msg}
}

// EntityCountUpdate is the outbound message for count subscriptions.
type EntityCountUpdate struct {
	CmdID   int    `json:"cmdId"`
	Count   int64  `json:"count"`
	ErrCode int    `json:"errorCode,omitempty"`
	ErrMsg  string `json:"errorMsg,omitempty"`
}

// AlarmDataUpdate is the outbound message for alarm subscriptions.
type AlarmDataUpdate struct {
	CmdID           int                                `json:"cmdId"`
	Data            *models.PageData[models.AlarmData] `json:"data,omitempty"`
	AllowedEntities int                                `json:"allowedEntities"`
	TotalEntities   int                                `json:"totalEntities"`
	ErrCode         int                                `json:"errorCode,omitempty"`
	ErrMsg          string                             `json:"errorMsg,omitempty"`
}
