// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Indicator drives the two battery LEDs. The pins keep their level until
// the next Set, across the sleep between wakes.
type Indicator struct {
	a, b gpio.PinOut
}

// NewIndicator wraps two output pins.
func NewIndicator(a, b gpio.PinOut) *Indicator {
	return &Indicator{a: a, b: b}
}

// OpenIndicator looks up the two pins by name.
func OpenIndicator(aName, bName string) (*Indicator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	a := gpioreg.ByName(aName)
	if a == nil {
		return nil, fmt.Errorf("indicator: pin %q not found", aName)
	}
	b := gpioreg.ByName(bName)
	if b == nil {
		return nil, fmt.Errorf("indicator: pin %q not found", bName)
	}
	return NewIndicator(a, b), nil
}

// Set drives output A and B.
func (i *Indicator) Set(a, b bool) error {
	if err := i.a.Out(gpio.Level(a)); err != nil {
		return fmt.Errorf("indicator A: %w", err)
	}
	if err := i.b.Out(gpio.Level(b)); err != nil {
		return fmt.Errorf("indicator B: %w", err)
	}
	return nil
}
