package sampler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Quit is the cancellation flag shared with signal handling. Cancel sets the
// flag and wakes every goroutine blocked in Wait.
type Quit struct {
	flag atomic.Bool
	once sync.Once
	ch   chan struct{}
}

// NewQuit returns an unraised Quit.
func NewQuit() *Quit {
	return &Quit{ch: make(chan struct{})}
}

// Cancel raises the flag. It is safe to call more than once and from any
// goroutine.
func (q *Quit) Cancel() {
	q.once.Do(func() {
		q.flag.Store(true)
		close(q.ch)
	})
}

// Cancelled reports whether Cancel has been called.
func (q *Quit) Cancelled() bool {
	return q.flag.Load()
}

// Done is closed on Cancel.
func (q *Quit) Done() <-chan struct{} {
	return q.ch
}

// Wait sleeps for d or until Cancel, whichever comes first, and reports
// whether it was cancelled.
func (q *Quit) Wait(d time.Duration) bool {
	if d <= 0 {
		return q.Cancelled()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return q.Cancelled()
	case <-q.ch:
		return true
	}
}
