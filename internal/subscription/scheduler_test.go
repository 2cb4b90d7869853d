package subscription

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func schedulerLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestSchedulerRunsRepeatedly(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, 2, schedulerLogger())
	defer s.Stop()

	var runs atomic.Int32
	s.ScheduleWithFixedDelay(func() bool {
		runs.Add(1)
		return true
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestSchedulerStopsWhenFnReturnsFalse(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, 2, schedulerLogger())
	defer s.Stop()

	var runs atomic.Int32
	s.ScheduleWithFixedDelay(func() bool {
		runs.Add(1)
		return false
	})

	assert.Eventually(t, func() bool { return runs.Load() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestSchedulerTaskCancel(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, 2, schedulerLogger())
	defer s.Stop()

	var runs atomic.Int32
	task := s.ScheduleWithFixedDelay(func() bool {
		runs.Add(1)
		return true
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)
	task.Cancel()
	task.Cancel() // idempotent

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	// One in-flight run may still land after cancel, never more.
	assert.LessOrEqual(t, runs.Load(), after+1)
}

func TestSchedulerSurvivesPanickingTask(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, 2, schedulerLogger())
	defer s.Stop()

	var runs atomic.Int32
	s.ScheduleWithFixedDelay(func() bool {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return true
	})

	// The panicking run is recovered and the task re-armed.
	assert.Eventually(t, func() bool { return runs.Load() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestSchedulerStopWaitsForInFlightRuns(t *testing.T) {
	s := NewScheduler(5*time.Millisecond, 2, schedulerLogger())

	started := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool
	s.ScheduleWithFixedDelay(func() bool {
		once.Do(func() { close(started) })
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return true
	})

	<-started
	s.Stop()
	assert.True(t, finished.Load(), "Stop must wait for the in-flight run")
}
