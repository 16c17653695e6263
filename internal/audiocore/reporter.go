package audiocore

import (
	"sync"
	"time"

	"github.com/tphakala/audiodevicebuffer/internal/clock"
)

// periodicReporter schedules reporting ticks on the worker. Each start bumps
// the generation so ticks armed by an earlier run are ignored.
//
// start, stop and tick run on the worker goroutine. The timer callback runs
// on the clock's goroutine: it arms the next deadline itself and then posts
// the tick, so the schedule stays on the interval grid however late the
// worker handles the tick.
type periodicReporter struct {
	clock    clock.Clock
	interval time.Duration
	post     func(workItem) bool

	// mu guards the fields shared with the timer callback.
	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
	next  time.Time

	// Owned by the worker goroutine.
	active bool
	rounds int
	last   time.Time
}

func newPeriodicReporter(clk clock.Clock, interval time.Duration, post func(workItem) bool) *periodicReporter {
	return &periodicReporter{clock: clk, interval: interval, post: post}
}

// start begins a new reporting run. The start itself counts as the first
// round and emits nothing.
func (r *periodicReporter) start(now time.Time) {
	r.mu.Lock()
	r.stopTimerLocked()
	r.gen++
	r.next = now
	r.armLocked(r.gen)
	r.mu.Unlock()

	r.active = true
	r.rounds = 1
	r.last = now
}

func (r *periodicReporter) stop() {
	if !r.active {
		return
	}
	r.active = false

	r.mu.Lock()
	r.gen++
	r.stopTimerLocked()
	r.mu.Unlock()
}

// tick advances one round for a tick that fired at at. ok is false for ticks
// of a stopped or superseded run. emit is false for the first full interval
// and whenever no time has elapsed.
func (r *periodicReporter) tick(gen uint64, at time.Time) (elapsed time.Duration, emit, ok bool) {
	if !r.active || gen != r.currentGen() {
		return 0, false, false
	}
	r.rounds++
	elapsed = at.Sub(r.last)
	r.last = at
	return elapsed, r.rounds > 2 && elapsed > 0, true
}

func (r *periodicReporter) currentGen() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// armLocked schedules the next tick one interval after r.next.
func (r *periodicReporter) armLocked(gen uint64) {
	r.next = r.next.Add(r.interval)
	delay := max(r.next.Sub(r.clock.Now()), 0)
	r.timer = r.clock.AfterFunc(delay, func() { r.fire(gen) })
}

func (r *periodicReporter) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	at := r.next
	r.armLocked(gen)
	r.mu.Unlock()

	r.post(workItem{kind: workReporterTick, gen: gen, at: at})
}

func (r *periodicReporter) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
