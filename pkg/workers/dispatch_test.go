package workers_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/onesync/core/pkg/workers"
	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsJobs(t *testing.T) {
	pool := workers.New(2, 8)
	defer pool.Stop()

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		err := pool.Submit(func() { count.Add(1) })
		assert.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return count.Load() == 5 }, time.Second, time.Millisecond)
}

func TestSubmitReturnsErrSaturatedWhenQueueFull(t *testing.T) {
	pool := workers.New(0, 1) // no workers draining the queue
	defer pool.Stop()

	assert.NoError(t, pool.Submit(func() {}))
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, workers.ErrSaturated)
}
