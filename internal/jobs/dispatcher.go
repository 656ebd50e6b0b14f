package jobs

import (
	"context"
	"sync"

	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

// Dispatcher runs background work detached from the request lifecycle. A
// bounded semaphore caps concurrency; panics in a job are recovered and
// logged so one bad run cannot take the process down.
type Dispatcher struct {
	log  *logger.Logger
	base context.Context
	sem  chan struct{}
	wg   sync.WaitGroup
}

func NewDispatcher(base context.Context, log *logger.Logger, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Dispatcher{
		log:  log.With("component", "JobDispatcher"),
		base: base,
		sem:  make(chan struct{}, concurrency),
	}
}

// Submit schedules fn on the dispatcher's own context; the caller's request
// context may die long before the job does.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-d.base.Done():
			d.log.Warn("Dispatcher stopped before job could start", "job", name)
			return
		}
		defer func() { <-d.sem }()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Background job panic", "job", name, "panic", r)
			}
		}()
		fn(d.base)
	}()
}

// Wait blocks until every submitted job has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
