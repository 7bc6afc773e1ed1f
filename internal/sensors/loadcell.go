// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/hx711"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// loadCell is one HX711 amplifier.
type loadCell struct {
	name    string
	dev     *hx711.Dev
	timeout time.Duration
}

// ReadRaw waits for the HX711 to finish a conversion and returns it.
func (c *loadCell) ReadRaw() (int32, error) {
	v, err := c.dev.ReadTimeout(c.timeout)
	if err != nil {
		return 0, fmt.Errorf("%s load cell: %w", c.name, err)
	}
	return v, nil
}

// LoadCellBank opens the four HX711 channels described in the config.
type LoadCellBank struct {
	channels []config.ChannelConfig
	timeout  time.Duration
	log      logging.Logger
}

// NewLoadCellBank returns a bank for the configured channels.
func NewLoadCellBank(channels []config.ChannelConfig, timeout time.Duration, log logging.Logger) *LoadCellBank {
	if log == nil {
		log = &logging.NullLogger{}
	}
	return &LoadCellBank{channels: channels, timeout: timeout, log: log}
}

// Open initializes the periph host and every HX711.
func (b *LoadCellBank) Open() ([weight.ChannelCount]weight.RawChannel, error) {
	var out [weight.ChannelCount]weight.RawChannel
	if len(b.channels) != weight.ChannelCount {
		return out, fmt.Errorf("need %d load cells, have %d", weight.ChannelCount, len(b.channels))
	}
	if _, err := host.Init(); err != nil {
		return out, fmt.Errorf("periph host init: %w", err)
	}

	for i, ch := range b.channels {
		clk := gpioreg.ByName(ch.ClockPin)
		if clk == nil {
			return out, fmt.Errorf("%s load cell: clock pin %q not found", ch.Name, ch.ClockPin)
		}
		data := gpioreg.ByName(ch.DataPin)
		if data == nil {
			return out, fmt.Errorf("%s load cell: data pin %q not found", ch.Name, ch.DataPin)
		}
		dev, err := hx711.New(clk, data)
		if err != nil {
			return out, fmt.Errorf("%s load cell: %w", ch.Name, err)
		}
		b.log.Debugf("%s load cell: HX711 on DOUT=%s SCK=%s", ch.Name, ch.DataPin, ch.ClockPin)
		out[i] = &loadCell{name: ch.Name, dev: dev, timeout: b.timeout}
	}
	return out, nil
}
