package pairstate

import (
	"context"
	"sync"
	"time"
)

// Runner schedules a named recurring callback. Adding an interval under an
// existing name replaces the previous schedule.
type Runner interface {
	AddInterval(name string, interval time.Duration, fn func())
	ClearInterval(name string)
}

// IntervalRunner backs each named interval with its own goroutine. The
// callback fires once immediately and then on every tick.
type IntervalRunner struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewIntervalRunner() *IntervalRunner {
	return &IntervalRunner{
		cancels: make(map[string]context.CancelFunc),
	}
}

func (r *IntervalRunner) AddInterval(name string, interval time.Duration, fn func()) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if previous, ok := r.cancels[name]; ok {
		previous()
	}
	r.cancels[name] = cancel
	r.mu.Unlock()

	go func() {
		fn()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (r *IntervalRunner) ClearInterval(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.cancels[name]; ok {
		cancel()
		delete(r.cancels, name)
	}
}

// Shutdown stops every scheduled interval.
func (r *IntervalRunner) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cancel := range r.cancels {
		cancel()
		delete(r.cancels, name)
	}
}
