package subscription

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is the handle to one scheduled refresh job.
type Task struct {
	stop chan struct{}
	once sync.Once
}

// Cancel stops the task. The next tick is not delivered; a tick already
// running is not interrupted. Idempotent.
func (t *Task) Cancel() {
	t.once.Do(func() { close(t.stop) })
}

// Scheduler drives periodic fixed-delay re-evaluation of dynamic
// subscription contexts. Each task gets its own timer goroutine; the
// worker pool bounds how many refresh functions run at once.
//
// Fixed delay means the next tick is armed only after the previous run
// returns, so a slow refresh never stacks ticks.
type Scheduler struct {
	interval time.Duration
	sem      chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	log      *logrus.Logger
}

// NewScheduler creates a scheduler with the given refresh interval and
// worker pool size.
func NewScheduler(interval time.Duration, poolSize int, log *logrus.Logger) *Scheduler {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Scheduler{
		interval: interval,
		sem:      make(chan struct{}, poolSize),
		done:     make(chan struct{}),
		log:      log,
	}
}

// ScheduleWithFixedDelay arms fn to run every interval. fn returning
// false stops the task permanently; the scheduler does not re-arm a task
// whose validation failed. A panicking fn is logged and re-armed, never
// allowed to kill the scheduler.
func (s *Scheduler) ScheduleWithFixedDelay(fn func() bool) *Task {
	t := &Task{stop: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.interval)
		defer timer.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-s.done:
				return
			case <-timer.C:
			}

			select {
			case s.sem <- struct{}{}:
			case <-t.stop:
				return
			case <-s.done:
				return
			}
			again := s.run(fn)
			<-s.sem
			if !again {
				return
			}
			timer.Reset(s.interval)
		}
	}()
	return t
}

func (s *Scheduler) run(fn func() bool) (again bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Warn("Refresh task panicked")
			again = true
		}
	}()
	return fn()
}

// Stop cancels all tasks and waits for in-flight refreshes to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}
