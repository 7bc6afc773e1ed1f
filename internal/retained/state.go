// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package retained keeps the small record that survives deep sleep: the
// four channel offsets, the tare epoch and the sleep duration.
package retained

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/smartbin/internal/weight"
)

// ErrCorrupt is returned by Load when a record exists but cannot be trusted.
var ErrCorrupt = errors.New("retained: corrupt record")

// State is the retained record. The zero value is the cold boot state.
type State struct {
	SleepHours float64
	Offsets    [weight.ChannelCount]int64
	TareEpoch  uint32 // 0 until the first zeroing
}

// Warm reports whether the offsets have been established at least once.
func (s State) Warm() bool {
	return s.TareEpoch > 0
}

// MaxSleepHours is the longest sleep a time.Duration can hold.
const MaxSleepHours = float64(math.MaxInt64) / float64(time.Hour)

// SleepDuration converts SleepHours to a timer duration. Values that do not
// fit are clamped: non-positive or NaN to zero, too large to the maximum.
func (s State) SleepDuration() time.Duration {
	switch {
	case !(s.SleepHours > 0):
		return 0
	case s.SleepHours >= MaxSleepHours:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s.SleepHours * float64(time.Hour))
}

// Store loads and saves the retained record.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// MemoryStore keeps the record in memory. It stands in for retained memory
// on the bench and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	has   bool
	saves int
}

// NewMemoryStore returns a store holding st, or a cold store when st is nil.
func NewMemoryStore(st *State) *MemoryStore {
	m := &MemoryStore{}
	if st != nil {
		m.state, m.has = *st, true
	}
	return m
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has {
		return State{}, nil
	}
	return m.state, nil
}

func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, m.has = st, true
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
