// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package tare decides, on every wake, whether the scale is zeroed fresh or
// restored from the retained offsets, and applies remote tare commands.
package tare

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/smartbin/internal/logging"
	"github.com/relabs-tech/smartbin/internal/retained"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// ErrNotPrepared is returned when a remote tare arrives before the offsets
// were established for this wake.
var ErrNotPrepared = errors.New("tare: offsets not established")

// Mode is the state of the tare machine.
type Mode int

const (
	Cold Mode = iota // no trusted offsets
	Warm             // offsets restored from the retained record
)

func (m Mode) String() string {
	switch m {
	case Cold:
		return "COLD"
	case Warm:
		return "WARM"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ModeOf returns the mode implied by a retained record.
func ModeOf(st retained.State) Mode {
	if st.Warm() {
		return Warm
	}
	return Cold
}

// Scale is the part of weight acquisition the machine drives.
type Scale interface {
	ZeroAll() error
	SetOffsets([weight.ChannelCount]int64) error
	Offsets() [weight.ChannelCount]int64
}

// Machine runs the tare transitions against a scale.
type Machine struct {
	scale Scale
	token string
	log   logging.Logger
}

// New creates a machine. token is the exact payload accepted as a tare
// request.
func New(scale Scale, token string, log logging.Logger) *Machine {
	if log == nil {
		log = &logging.NullLogger{}
	}
	return &Machine{scale: scale, token: token, log: log}
}

// Prepare installs offsets for this wake and returns the updated record.
// A cold record is zeroed fresh and becomes warm; a warm record has its
// offsets installed as-is. The epoch only moves from 0 to 1.
func (m *Machine) Prepare(st retained.State) (retained.State, error) {
	switch ModeOf(st) {
	case Cold:
		if err := m.scale.ZeroAll(); err != nil {
			return st, fmt.Errorf("cold start zero: %w", err)
		}
		st.Offsets = m.scale.Offsets()
		st.TareEpoch = 1
		m.log.Infof("tare: cold start, zeroed channels, offsets=%v", st.Offsets)
	default:
		if err := m.scale.SetOffsets(st.Offsets); err != nil {
			return st, fmt.Errorf("restore offsets: %w", err)
		}
		m.log.Infof("tare: warm wake, restored offsets=%v (epoch %d)", st.Offsets, st.TareEpoch)
	}
	return st, nil
}

// Accepts reports whether payload is a tare request.
func (m *Machine) Accepts(payload []byte) bool {
	return string(payload) == m.token
}

// Apply handles an inbound command. Anything other than the accepted token
// leaves st untouched and reports false. On a hardware fault during the
// re-zero the previous offsets are put back.
func (m *Machine) Apply(st retained.State, payload []byte) (retained.State, bool, error) {
	if !m.Accepts(payload) {
		m.log.Debugf("tare: ignoring command %q", payload)
		return st, false, nil
	}
	if !st.Warm() {
		return st, false, ErrNotPrepared
	}

	prev := m.scale.Offsets()
	if err := m.scale.ZeroAll(); err != nil {
		if rerr := m.scale.SetOffsets(prev); rerr != nil {
			m.log.Errorf("tare: restoring offsets after failed zero: %v", rerr)
		}
		return st, false, fmt.Errorf("remote tare: %w", err)
	}
	st.Offsets = m.scale.Offsets()
	m.log.Infof("tare: remote tare applied, offsets=%v", st.Offsets)
	return st, true, nil
}
