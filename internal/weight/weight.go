// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package weight turns four raw load-cell channels into calibrated masses.
package weight

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ChannelCount is the number of load cells under the bin.
const ChannelCount = 4

var (
	// ErrNotStarted is returned when channels are used before BeginChannels.
	ErrNotStarted = errors.New("weight: channels not started")
	// ErrInvalidScale is returned for a zero or non-finite calibration factor.
	ErrInvalidScale = errors.New("weight: invalid calibration factor")
)

// RawChannel is one load-cell ADC path.
type RawChannel interface {
	ReadRaw() (int32, error)
}

// Bank opens the four raw channels.
type Bank interface {
	Open() ([ChannelCount]RawChannel, error)
}

// Channel is a raw channel with its zero point and gain.
type Channel struct {
	src       RawChannel
	RawOffset int64
	Scale     float64
}

// Reading holds one sample of every channel, in kilograms.
type Reading struct {
	Masses [ChannelCount]float64
	Total  float64
}

// FormatMass renders a mass the way it goes on the wire: two decimals.
func FormatMass(v float64) string {
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Scale acquires weights from four channels.
type Scale struct {
	bank        Bank
	tareSamples int
	channels    [ChannelCount]*Channel
	started     bool
}

// NewScale creates a scale over bank. tareSamples raw reads are averaged per
// channel when zeroing; values below one are treated as one.
func NewScale(bank Bank, tareSamples int) *Scale {
	if tareSamples < 1 {
		tareSamples = 1
	}
	return &Scale{bank: bank, tareSamples: tareSamples}
}

// BeginChannels opens the four channels. Offsets start at zero and gains at
// one until ZeroAll/SetOffsets and ApplyCalibration are called.
func (s *Scale) BeginChannels() error {
	srcs, err := s.bank.Open()
	if err != nil {
		return fmt.Errorf("open channels: %w", err)
	}
	for i, src := range srcs {
		if src == nil {
			return fmt.Errorf("open channels: channel %d missing", i+1)
		}
		s.channels[i] = &Channel{src: src, Scale: 1}
	}
	s.started = true
	return nil
}

// ApplyCalibration sets the per-channel gains.
func (s *Scale) ApplyCalibration(scales [ChannelCount]float64) error {
	if !s.started {
		return ErrNotStarted
	}
	for i, f := range scales {
		if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("channel %d: %w: %v", i+1, ErrInvalidScale, f)
		}
	}
	for i, f := range scales {
		s.channels[i].Scale = f
	}
	return nil
}

// ZeroAll captures the current ambient reading of every channel as its new
// zero point. Offsets only change if all four channels read successfully.
func (s *Scale) ZeroAll() error {
	if !s.started {
		return ErrNotStarted
	}
	var next [ChannelCount]int64
	for i, ch := range s.channels {
		avg, err := average(ch.src, s.tareSamples)
		if err != nil {
			return fmt.Errorf("zero channel %d: %w", i+1, err)
		}
		next[i] = avg
	}
	for i, ch := range s.channels {
		ch.RawOffset = next[i]
	}
	return nil
}

// SetOffsets installs previously captured zero points without re-zeroing.
func (s *Scale) SetOffsets(offsets [ChannelCount]int64) error {
	if !s.started {
		return ErrNotStarted
	}
	for i, ch := range s.channels {
		ch.RawOffset = offsets[i]
	}
	return nil
}

// Offsets returns the zero points currently in effect.
func (s *Scale) Offsets() [ChannelCount]int64 {
	var out [ChannelCount]int64
	for i, ch := range s.channels {
		if ch != nil {
			out[i] = ch.RawOffset
		}
	}
	return out
}

// ReadAll samples every channel once and converts it to mass.
func (s *Scale) ReadAll() (Reading, error) {
	if !s.started {
		return Reading{}, ErrNotStarted
	}
	var r Reading
	for i, ch := range s.channels {
		raw, err := ch.src.ReadRaw()
		if err != nil {
			return Reading{}, fmt.Errorf("read channel %d: %w", i+1, err)
		}
		r.Masses[i] = float64(int64(raw)-ch.RawOffset) / ch.Scale
		r.Total += r.Masses[i]
	}
	return r, nil
}

func average(src RawChannel, n int) (int64, error) {
	var sum int64
	for i := 0; i < n; i++ {
		v, err := src.ReadRaw()
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}
	return sum / int64(n), nil
}
