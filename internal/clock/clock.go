// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock puts every wait of the node behind an interface.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock blocks for a duration. Everything in the wake cycle that waits
// (connect retries, the listen window, the sleep between wakes) goes
// through a Clock so tests can run without real time passing.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// System waits on the wall clock.
type System struct{}

// Sleep waits for d or until ctx is done.
func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake records requested sleeps and returns immediately. OnSleep, when set,
// runs on every call before the context is checked.
type Fake struct {
	mu      sync.Mutex
	sleeps  []time.Duration
	OnSleep func(n int, d time.Duration)
}

// Sleep records d.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	n := len(f.sleeps)
	hook := f.OnSleep
	f.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

// Sleeps returns a copy of every duration slept so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
