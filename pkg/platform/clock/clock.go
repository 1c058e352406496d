// Package clock abstracts wall-clock time so freeze and retention windows can
// be tested deterministically. Services never call time.Now directly for
// anything that feeds a time-gated guard.
package clock

import (
	"sync"
	"time"
)

// Clock is the single time authority for the engine.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

func NewSystem() System {
	return System{}
}

func (System) Now() time.Time {
	return time.Now()
}

// Fake is a mutable clock for tests. It only moves when told to.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock pinned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
