// Package workerpool runs future-returning handler continuations on a
// bounded goroutine pool so a slow async handler cannot unbound the number
// of goroutines blocked on a channel receive.
package workerpool

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

var (
	once sync.Once
	pool *ants.Pool
)

// defaultSize matches ants' own default: unbounded would defeat the point
// of pooling; this is deliberately generous since pooled goroutines here
// are blocked on a channel receive, not doing CPU work.
const defaultSize = 1 << 16

func get() *ants.Pool {
	once.Do(func() {
		p, err := ants.NewPool(defaultSize, ants.WithNonblocking(false))
		if err != nil {
			panic("ember: workerpool: " + err.Error())
		}
		pool = p
	})
	return pool
}

// Submit runs fn on the pool, falling back to a bare goroutine if the pool
// rejects the task. The pool is blocking, so a saturated pool makes Submit
// wait for a free worker rather than reject.
func Submit(fn func()) {
	if err := get().Submit(fn); err != nil {
		go fn()
	}
}

// Resize changes the pool's goroutine cap at runtime, per Config's
// configurable async-handler concurrency limit.
func Resize(n int) {
	get().Tune(n)
}
