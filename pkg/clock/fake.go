package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	period   time.Duration // zero for one-shot timers/After
	stopped  bool
}

// NewFake returns a Fake clock starting at t0.
func NewFake(t0 time.Time) *Fake {
	return &Fake{now: t0}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward, firing any due timers/tickers in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		w, ok := f.nextDue(target)
		if !ok {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = w.deadline
		select {
		case w.ch <- f.now:
		default:
		}
		if w.period > 0 && !w.stopped {
			w.deadline = w.deadline.Add(w.period)
		} else {
			w.stopped = true
		}
	}
}

func (f *Fake) nextDue(target time.Time) (*fakeWaiter, bool) {
	var best *fakeWaiter
	for _, w := range f.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) {
			best = w
		}
	}
	return best, best != nil
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	f.sortWaitersLocked()
	return w.ch
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	f.sortWaitersLocked()
	return &fakeTimer{f: f, w: w}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1), period: d}
	f.waiters = append(f.waiters, w)
	f.sortWaitersLocked()
	return &fakeTicker{f: f, w: w}
}

func (f *Fake) sortWaitersLocked() {
	sort.Slice(f.waiters, func(i, j int) bool {
		return f.waiters[i].deadline.Before(f.waiters[j].deadline)
	})
}

type fakeTimer struct {
	f *Fake
	w *fakeWaiter
}

func (t *fakeTimer) C() <-chan time.Time { return t.w.ch }

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	already := t.w.stopped
	t.w.stopped = true
	return !already
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	was := !t.w.stopped
	t.w.stopped = false
	t.w.deadline = t.f.now.Add(d)
	t.f.sortWaitersLocked()
	return was
}

type fakeTicker struct {
	f *Fake
	w *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.w.stopped = true
}
