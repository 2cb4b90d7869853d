// Package models holds the shared data model for the telemetry query and
// subscription core: time-series queries, aggregation buckets, sample
// values and the entity/alarm query shapes resolved for subscriptions.
package models

import (
	"errors"
	"fmt"
	"strconv"
)

// Aggregation selects how raw samples inside a bucket are reduced to a
// single value. AggNone skips bucketing entirely.
type Aggregation string

const (
	AggNone  Aggregation = "NONE"
	AggAvg   Aggregation = "AVG"
	AggMin   Aggregation = "MIN"
	AggMax   Aggregation = "MAX"
	AggSum   Aggregation = "SUM"
	AggCount Aggregation = "COUNT"
)

// Valid reports whether the aggregation is one of the supported kinds.
func (a Aggregation) Valid() bool {
	switch a {
	case AggNone, AggAvg, AggMin, AggMax, AggSum, AggCount:
		return true
	}
	return false
}

// SortOrder is the sort direction for raw range fetches.
type SortOrder string

const (
	OrderAsc  SortOrder = "ASC"
	OrderDesc SortOrder = "DESC"
)

// ValueDomain identifies which typed column a probe query targets. Sample
// values are polymorphic and the store indexes string and numeric values
// separately.
type ValueDomain string

const (
	DomainString  ValueDomain = "string"
	DomainNumeric ValueDomain = "numeric"
)

// ReadQuery describes one time-series read for a single key. IntervalMs is
// required for every aggregation except AggNone.
type ReadQuery struct {
	Key        string
	StartTs    int64
	EndTs      int64
	IntervalMs int64
	Limit      int
	Order      SortOrder
	Agg        Aggregation
}

var (
	ErrInvalidTimeRange = errors.New("start ts must not be after end ts")
	ErrInvalidInterval  = errors.New("interval must be positive")
)

// Validate checks the query invariants before it reaches the engine.
func (q ReadQuery) Validate() error {
	if q.StartTs > q.EndTs {
		return fmt.Errorf("%w: [%d..%d]", ErrInvalidTimeRange, q.StartTs, q.EndTs)
	}
	if !q.Agg.Valid() {
		return fmt.Errorf("invalid aggregation: %s", q.Agg)
	}
	if q.Agg != AggNone && q.IntervalMs <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, q.IntervalMs)
	}
	return nil
}

// Bucket is one fixed-width sub-range of an aggregation query. EndTs is
// exclusive. Ts is the midpoint and is stamped on the aggregate computed
// for the bucket regardless of where the underlying samples fall.
type Bucket struct {
	StartTs int64
	EndTs   int64
	Ts      int64
}

// TsValue is a single timestamped value as delivered to clients. Values
// are rendered as strings on the wire since the underlying samples are
// polymorphic.
type TsValue struct {
	Ts    int64  `json:"ts"`
	Value string `json:"value"`
}

// Sample is one raw stored data point for an entity.
type Sample struct {
	Key    string
	Ts     int64
	StrVal *string
	NumVal *float64
}

// ValueAsString renders the sample value for delivery.
func (s Sample) ValueAsString() string {
	if s.StrVal != nil {
		return *s.StrVal
	}
	if s.NumVal != nil {
		return strconv.FormatFloat(*s.NumVal, 'f', -1, 64)
	}
	return ""
}

// AggregateValue is the outcome of aggregating one bucket. A bucket with
// no samples produces an empty value: both value pointers nil. Empty is a
// valid outcome and is distinguishable from a stored zero.
type AggregateValue struct {
	Ts     int64
	Key    string
	StrVal *string
	NumVal *float64
}

// IsEmpty reports whether the bucket had no samples.
func (v AggregateValue) IsEmpty() bool {
	return v.StrVal == nil && v.NumVal == nil
}

// Domain reports which typed probe populated the value, or "" when empty.
func (v AggregateValue) Domain() ValueDomain {
	switch {
	case v.StrVal != nil:
		return DomainString
	case v.NumVal != nil:
		return DomainNumeric
	}
	return ""
}

// TsValue converts the aggregate to its wire representation.
func (v AggregateValue) TsValue() TsValue {
	out := TsValue{Ts: v.Ts}
	if v.StrVal != nil {
		out.Value = *v.StrVal
	} else if v.NumVal != nil {
		out.Value = strconv.FormatFloat(*v.NumVal, 'f', -1, 64)
	}
	return out
}
