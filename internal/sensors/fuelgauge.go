// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// MAX17043 registers.
const (
	max17043VCell = 0x02
	max17043SOC   = 0x04
)

// FuelGauge reads a MAX17043 LiPo fuel gauge over I2C.
type FuelGauge struct {
	dev   *i2c.Dev
	close func() error
}

// NewFuelGauge wraps a gauge at addr on an already open bus.
func NewFuelGauge(bus i2c.Bus, addr uint16) *FuelGauge {
	return &FuelGauge{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

// OpenFuelGauge opens busName ("" for the first bus) and wraps the gauge.
func OpenFuelGauge(busName string, addr uint16) (*FuelGauge, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("fuel gauge: open i2c bus %q: %w", busName, err)
	}
	g := NewFuelGauge(bus, addr)
	g.close = bus.Close
	return g, nil
}

// Percent returns the state of charge. The gauge is not clamped and can
// report slightly more than 100 near full charge.
func (g *FuelGauge) Percent() (float64, error) {
	b, err := g.read16(max17043SOC)
	if err != nil {
		return 0, fmt.Errorf("fuel gauge SOC: %w", err)
	}
	return decodeSOC(b), nil
}

// Voltage returns the cell voltage in volts.
func (g *FuelGauge) Voltage() (float64, error) {
	b, err := g.read16(max17043VCell)
	if err != nil {
		return 0, fmt.Errorf("fuel gauge VCELL: %w", err)
	}
	return decodeVCell(b), nil
}

// Close releases the bus if the gauge opened it.
func (g *FuelGauge) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

func (g *FuelGauge) read16(reg byte) ([2]byte, error) {
	var r [2]byte
	if err := g.dev.Tx([]byte{reg}, r[:]); err != nil {
		return r, err
	}
	return r, nil
}

// decodeSOC: high byte is whole percent, low byte 1/256 percent.
func decodeSOC(b [2]byte) float64 {
	return float64(b[0]) + float64(b[1])/256.0
}

// decodeVCell: 12-bit value, 1.25 mV per LSB, left aligned.
func decodeVCell(b [2]byte) float64 {
	raw := uint16(b[0])<<4 | uint16(b[1])>>4
	return float64(raw) * 1.25 / 1000.0
}
