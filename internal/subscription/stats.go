package subscription

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Stats aggregates query counters across all contexts. The atomic
// counters are get-and-reset on each reporting interval; the Prometheus
// metrics accumulate. Purely observational, never used for control
// decisions.
type Stats struct {
	regularQueryCnt  atomic.Int64
	regularQueryTime atomic.Int64
	dynamicQueryCnt  atomic.Int64
	dynamicQueryTime atomic.Int64
	alarmQueryCnt    atomic.Int64
	alarmQueryTime   atomic.Int64

	queries *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewStats creates the counters and registers the Prometheus collectors.
func NewStats(reg prometheus.Registerer) *Stats {
	st := &Stats{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscription_queries_total",
			Help: "Number of subscription query invocations by type.",
		}, []string{"type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subscription_query_duration_seconds",
			Help:    "Subscription query latency by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(st.queries, st.latency)
	}
	return st
}

func (st *Stats) RecordRegularQuery(d time.Duration) {
	st.regularQueryCnt.Add(1)
	st.regularQueryTime.Add(d.Milliseconds())
	st.queries.WithLabelValues("regular").Inc()
	st.latency.WithLabelValues("regular").Observe(d.Seconds())
}

func (st *Stats) RecordDynamicQuery(d time.Duration) {
	st.dynamicQueryCnt.Add(1)
	st.dynamicQueryTime.Add(d.Milliseconds())
	st.queries.WithLabelValues("dynamic").Inc()
	st.latency.WithLabelValues("dynamic").Observe(d.Seconds())
}

func (st *Stats) RecordAlarmQuery(d time.Duration) {
	st.alarmQueryCnt.Add(1)
	st.alarmQueryTime.Add(d.Milliseconds())
	st.queries.WithLabelValues("alarm").Inc()
	st.latency.WithLabelValues("alarm").Observe(d.Seconds())
}

// Report logs and resets the interval counters. Nothing is logged when
// the interval was idle.
func (st *Stats) Report(log *logrus.Logger, liveContexts int) {
	regularCnt := st.regularQueryCnt.Swap(0)
	regularTime := st.regularQueryTime.Swap(0)
	dynamicCnt := st.dynamicQueryCnt.Swap(0)
	dynamicTime := st.dynamicQueryTime.Swap(0)
	alarmCnt := st.alarmQueryCnt.Swap(0)
	alarmTime := st.alarmQueryTime.Swap(0)

	if regularCnt == 0 && dynamicCnt == 0 && alarmCnt == 0 && liveContexts == 0 {
		return
	}
	log.WithFields(logrus.Fields{
		"regularQueryCnt":  regularCnt,
		"regularQueryMs":   regularTime,
		"dynamicQueryCnt":  dynamicCnt,
		"dynamicQueryMs":   dynamicTime,
		"alarmQueryCnt":    alarmCnt,
		"alarmQueryMs":     alarmTime,
		"liveContexts":     liveContexts,
	}).Info("Subscription stats")
}
