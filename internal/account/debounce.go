package account

import (
	"sync"
	"time"
)

// debouncer runs the last scheduled func after a quiet period; scheduling
// again before it fires replaces it.
type debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	timer *time.Timer
	seq   uint64
}

func (d *debouncer) schedule(fn func()) {
	d.mu.Lock(); defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		current := seq == d.seq
		d.mu.Unlock()
		// a timer that already fired can race with Stop
		if current {
			fn()
		}
	})
}

// cancel drops any pending call and reports whether one was pending.
func (d *debouncer) cancel() bool {
	d.mu.Lock(); defer d.mu.Unlock()
	d.seq++
	if d.timer == nil {
		return false
	}
	pending := d.timer.Stop()
	d.timer = nil
	return pending
}
