// Package reactor schedules periodic work for the daemon. Sessions do
// not own timers; the reactor wakes each registered timer at its next
// wake time from a single dispatch goroutine, which keeps suspension
// points explicit and lets tests drive ticks synchronously instead.
package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TimerFunc is invoked when a timer fires. It receives the event time
// and returns the next wake time; returning the zero time unregisters
// the timer.
type TimerFunc func(now time.Time) time.Time

// Timer is a registered timer.
type Timer struct {
	id      uint64
	fn      TimerFunc
	mu      sync.Mutex
	wake    time.Time // zero means never
	running bool
}

// Waketime returns the timer's next wake time (zero means never).
func (t *Timer) Waketime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wake
}

// Reactor owns the timer list and the dispatch loop.
type Reactor struct {
	mu     sync.Mutex
	timers []*Timer
	nextID uint64

	kick    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a reactor.
func New() *Reactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterTimer adds a timer firing at wake.
func (r *Reactor) RegisterTimer(fn TimerFunc, wake time.Time) *Timer {
	t := &Timer{
		id:   atomic.AddUint64(&r.nextID, 1),
		fn:   fn,
		wake: wake,
	}
	r.mu.Lock()
	r.timers = append(r.timers, t)
	r.mu.Unlock()
	r.wake()
	return t
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(t *Timer) {
	t.mu.Lock()
	t.wake = time.Time{}
	t.mu.Unlock()

	r.mu.Lock()
	for i, cur := range r.timers {
		if cur.id == t.id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

// UpdateTimer reschedules a timer. A timer currently executing keeps
// the wake time its callback returns.
func (r *Reactor) UpdateTimer(t *Timer, wake time.Time) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.wake = wake
	t.mu.Unlock()
	r.wake()
}

// wake nudges the dispatch loop to re-evaluate wake times.
func (r *Reactor) wake() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run starts the dispatch loop.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatchLoop()
}

// End signals the dispatch loop to stop.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait blocks until the dispatch loop has stopped.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for r.running.Load() {
		now := time.Now()
		next := r.fireDue(now)

		delay := time.Second
		if !next.IsZero() {
			if d := next.Sub(now); d < delay {
				delay = d
			}
		}
		if delay <= 0 {
			continue
		}

		select {
		case <-time.After(delay):
		case <-r.kick:
		case <-r.ctx.Done():
			return
		}
	}
}

// fireDue runs every due timer once and returns the earliest upcoming
// wake time (zero if no timer is scheduled).
func (r *Reactor) fireDue(now time.Time) time.Time {
	r.mu.Lock()
	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)
	r.mu.Unlock()

	var next time.Time
	for _, t := range timers {
		t.mu.Lock()
		wake := t.wake
		if !wake.IsZero() && !now.Before(wake) {
			t.wake = time.Time{}
			t.running = true
			t.mu.Unlock()

			newWake := t.fn(now)

			t.mu.Lock()
			t.running = false
			t.wake = newWake
		}
		wake = t.wake
		t.mu.Unlock()

		if !wake.IsZero() && (next.IsZero() || wake.Before(next)) {
			next = wake
		}
	}
	return next
}
