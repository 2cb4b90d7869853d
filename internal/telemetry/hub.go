// Package telemetry implements the in-process push-on-write fan-out:
// subscription contexts register interest in (entity, keys) pairs and get
// called back when new samples are written.
package telemetry

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ssmtariq/telemetry-core/internal/models"
)

// Subscription is one registered interest. Latest subscriptions only care
// about the newest value per key; time-series subscriptions receive every
// sample inside [StartTs, EndTs] (EndTs 0 means unbounded).
type Subscription struct {
	SessionID string
	EntityID  string
	Keys      map[string]struct{}
	Latest    bool
	StartTs   int64
	EndTs     int64

	// OnUpdate is invoked with the matching values, grouped by key. It
	// must be safe for concurrent invocation; contexts take their own
	// mutex inside.
	OnUpdate func(entityID string, data map[string][]models.TsValue)
}

// Manager is the fan-out interface consumed by subscription contexts.
type Manager interface {
	Subscribe(sub *Subscription) int
	Cancel(subID int)
}

// Hub is the in-memory Manager. Writers call OnTimeSeriesUpdate after
// persisting samples.
type Hub struct {
	mu       sync.RWMutex
	seq      int
	byID     map[int]*Subscription
	byEntity map[string]map[int]*Subscription
	log      *logrus.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		byID:     make(map[int]*Subscription),
		byEntity: make(map[string]map[int]*Subscription),
		log:      log,
	}
}

func (h *Hub) Subscribe(sub *Subscription) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	id := h.seq
	h.byID[id] = sub
	subs, ok := h.byEntity[sub.EntityID]
	if !ok {
		subs = make(map[int]*Subscription)
		h.byEntity[sub.EntityID] = subs
	}
	subs[id] = sub
	h.log.WithFields(logrus.Fields{
		"session": sub.SessionID,
		"entity":  sub.EntityID,
		"subId":   id,
	}).Debug("Registered telemetry subscription")
	return id
}

func (h *Hub) Cancel(subID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.byID[subID]
	if !ok {
		return
	}
	delete(h.byID, subID)
	if subs, ok := h.byEntity[sub.EntityID]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.byEntity, sub.EntityID)
		}
	}
}

// OnTimeSeriesUpdate dispatches freshly written samples to every matching
// subscription. Callbacks run on the caller's goroutine.
func (h *Hub) OnTimeSeriesUpdate(entityID string, samples []models.Sample) {
	h.mu.RLock()
	var matched []dispatch
	for _, sub := range h.byEntity[entityID] {
		data := match(sub, samples)
		if len(data) > 0 {
			matched = append(matched, dispatch{sub.OnUpdate, data})
		}
	}
	h.mu.RUnlock()

	for _, d := range matched {
		d.fn(entityID, d.data)
	}
}

type dispatch struct {
	fn   func(string, map[string][]models.TsValue)
	data map[string][]models.TsValue
}

func match(sub *Subscription, samples []models.Sample) map[string][]models.TsValue {
	var data map[string][]models.TsValue
	for _, s := range samples {
		if _, ok := sub.Keys[s.Key]; !ok {
			continue
		}
		if !sub.Latest {
			if s.Ts < sub.StartTs || (sub.EndTs > 0 && s.Ts > sub.EndTs) {
				continue
			}
		}
		if data == nil {
			data = make(map[string][]models.TsValue)
		}
		v := models.TsValue{Ts: s.Ts, Value: s.ValueAsString()}
		if sub.Latest {
			// Keep only the newest value per key.
			if prev := data[s.Key]; len(prev) == 0 || prev[0].Ts < s.Ts {
				data[s.Key] = []models.TsValue{v}
			}
		} else {
			data[s.Key] = append(data[s.Key], v)
		}
	}
	return data
}
