// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// mockZero is the raw reading of an unloaded mock cell.
const mockZero = 84000

type mockCell struct {
	start time.Time
	raw   int32
	noise float64
	phase float64
}

// ReadRaw returns the loaded value with a slow sinusoidal jitter.
func (m *mockCell) ReadRaw() (int32, error) {
	elapsed := time.Since(m.start).Seconds()
	return m.raw + int32(m.noise*math.Sin(elapsed*3+m.phase)), nil
}

// MockBank simulates four loaded cells for bench runs without hardware.
type MockBank struct {
	cfg      config.MockConfig
	channels []config.ChannelConfig
}

// NewMockBank creates a bank from the mock config. Each cell reads as if
// LoadKg were resting on it, using the channel's calibration factor.
func NewMockBank(cfg config.MockConfig, channels []config.ChannelConfig) *MockBank {
	return &MockBank{cfg: cfg, channels: channels}
}

func (b *MockBank) Open() ([weight.ChannelCount]weight.RawChannel, error) {
	var out [weight.ChannelCount]weight.RawChannel
	now := time.Now()
	for i := range out {
		var load, factor float64
		if i < len(b.cfg.LoadKg) {
			load = b.cfg.LoadKg[i]
		}
		if i < len(b.channels) {
			factor = b.channels[i].CalibrationFactor
		}
		out[i] = &mockCell{
			start: now,
			raw:   int32(mockZero + load*factor),
			noise: float64(b.cfg.Noise),
			phase: float64(i),
		}
	}
	return out, nil
}

// MockGauge reports a fixed charge and voltage.
type MockGauge struct {
	Pct  float64
	Volt float64
}

func (g MockGauge) Percent() (float64, error) { return g.Pct, nil }
func (g MockGauge) Voltage() (float64, error) { return g.Volt, nil }

// MockIndicator remembers the last levels it was set to.
type MockIndicator struct {
	A, B bool
}

func (i *MockIndicator) Set(a, b bool) error {
	i.A, i.B = a, b
	return nil
}
