// Package workers is the fixed-size goroutine pool that runs each
// client's SyncCommandList job off the tick goroutine. It follows the
// same Start(ctx)-plus-channel shape as the teacher's connection/
// broadcast/save workers, generalized into a plain job-submission
// pool since nothing in the retrieved corpus imports a dedicated
// worker-pool library (see DESIGN.md).
package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/onesync/core/pkg/log"
)

// Job is one unit of dispatched work, e.g. "build and flush this
// client's clone frame for this tick."
type Job func()

// ErrSaturated is returned by Submit when the job queue is full.
var ErrSaturated = fmt.Errorf("workers: pool saturated")

// Pool is a fixed number of goroutines draining a buffered job
// channel; submission never blocks the caller.
type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New starts a Pool with size workers and a queue of the given
// capacity.
func New(size, queueCapacity int) *Pool {
	p := &Pool{jobs: make(chan Job, queueCapacity)}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job()
		}
	}
}

// Submit enqueues a job without blocking. On saturation it logs and
// returns ErrSaturated rather than blocking the tick goroutine; the
// caller's per-client syncing gate (§4.4 step 7) tolerates the
// resulting dropped frame.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		log.Warn("workers: pool saturated, dropping job")
		return ErrSaturated
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (p *Pool) Stop() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
}
