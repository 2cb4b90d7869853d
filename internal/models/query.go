package models

// EntityFilter is the declarative part of an entity query. The resolver
// turns it into a concrete, stably ordered entity list.
type EntityFilter struct {
	EntityType string `json:"entityType"`
	NameFilter string `json:"nameFilter,omitempty"`
}

// PageLink selects one page of resolved entities. A dynamic page link (or
// a rolling time window) marks the query for periodic re-evaluation.
type PageLink struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"pageSize"`
	Dynamic      bool  `json:"dynamic"`
	TimeWindowMs int64 `json:"timeWindowMs,omitempty"`
}

// EntityDataQuery is the resolved-entity query carried by entity data and
// entity count subscriptions.
type EntityDataQuery struct {
	Filter       EntityFilter `json:"entityFilter"`
	PageLink     PageLink     `json:"pageLink"`
	LatestValues []string     `json:"latestValues,omitempty"`
}

// IsDynamic reports whether the query must be periodically re-evaluated.
func (q EntityDataQuery) IsDynamic() bool {
	return q.PageLink.Dynamic || q.PageLink.TimeWindowMs > 0
}

// AlarmDataQuery is the alarm variant: alarms of the resolved entities
// inside a rolling time window.
type AlarmDataQuery struct {
	Filter       EntityFilter `json:"entityFilter"`
	PageLink     PageLink     `json:"pageLink"`
	LatestValues []string     `json:"latestValues,omitempty"`
}

// EntityData is the per-entity slice of a subscription snapshot. Latest
// holds the most recent value per key; Timeseries holds ranges fetched by
// history and time-series sub-commands.
type EntityData struct {
	EntityID   string               `json:"entityId"`
	Latest     map[string]TsValue   `json:"latest,omitempty"`
	Timeseries map[string][]TsValue `json:"timeseries,omitempty"`
}

// NewEntityData returns an EntityData with initialized maps.
func NewEntityData(entityID string) EntityData {
	return EntityData{
		EntityID:   entityID,
		Latest:     make(map[string]TsValue),
		Timeseries: make(map[string][]TsValue),
	}
}

// AlarmData is one alarm row delivered to alarm subscriptions.
type AlarmData struct {
	ID         string `json:"id"`
	EntityID   string `json:"originator"`
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Status     string `json:"status"`
	CreatedTs  int64  `json:"createdTime"`
	AckTs      int64  `json:"ackTs,omitempty"`
	ClearTs    int64  `json:"clearTs,omitempty"`
	EntityName string `json:"originatorName,omitempty"`
}

// PageData is one page of query results plus paging metadata.
type PageData[T any] struct {
	Data          []T   `json:"data"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	HasNext       bool  `json:"hasNext"`
}

// EmptyPage returns a page with no data and zero totals.
func EmptyPage[T any]() PageData[T] {
	return PageData[T]{Data: []T{}}
}
