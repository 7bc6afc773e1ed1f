// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package battery maps the fuel gauge reading to the two-LED indicator.
package battery

import (
	"fmt"
)

// Thresholds of the indicator, in percent of charge.
const (
	LowThreshold  = 10.0
	HighThreshold = 100.0
)

// Indicator is the discrete battery state shown on the LEDs.
type Indicator int

const (
	Normal Indicator = iota
	Low
	High // gauge reports more than 100%, seen at the charging boundary
)

func (i Indicator) String() string {
	switch i {
	case Normal:
		return "NORMAL"
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("Indicator(%d)", int(i))
	}
}

// Evaluate classifies a charge percentage. The gauge value is not clamped,
// so anything above 100 is High rather than an error.
func Evaluate(percent float64) Indicator {
	switch {
	case percent < LowThreshold:
		return Low
	case percent > HighThreshold:
		return High
	default:
		return Normal
	}
}

// Outputs returns the levels of output A (green) and B (red).
func (i Indicator) Outputs() (a, b bool) {
	switch i {
	case Low:
		return false, true
	case High:
		return true, false
	default:
		return false, false
	}
}

// Status is one gauge reading with its indicator.
type Status struct {
	Percent   float64
	Voltage   float64
	Indicator Indicator
}

// Gauge reads state of charge and cell voltage.
type Gauge interface {
	Percent() (float64, error)
	Voltage() (float64, error)
}

// Display drives the two indicator outputs.
type Display interface {
	Set(a, b bool) error
}

// Read samples the gauge and evaluates the indicator.
func Read(g Gauge) (Status, error) {
	pct, err := g.Percent()
	if err != nil {
		return Status{}, fmt.Errorf("battery percent: %w", err)
	}
	v, err := g.Voltage()
	if err != nil {
		return Status{}, fmt.Errorf("battery voltage: %w", err)
	}
	return Status{Percent: pct, Voltage: v, Indicator: Evaluate(pct)}, nil
}

// Show drives d from the status indicator.
func Show(d Display, s Status) error {
	a, b := s.Indicator.Outputs()
	return d.Set(a, b)
}
