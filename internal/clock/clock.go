// Package clock supplies the time sources used by the crawl driver.
package clock

import (
	"sync"
	"time"
)

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a preset time, advancing by Step on every call when Step is
// positive. It makes rendered timestamps reproducible.
type Fixed struct {
	mu   sync.Mutex
	t    time.Time
	Step time.Duration
}

// NewFixed starts a Fixed clock at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t.UTC()}
}

// Now returns the current preset time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.t
	if f.Step > 0 {
		f.t = f.t.Add(f.Step)
	}
	return now
}
