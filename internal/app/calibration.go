// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// ErrNoDeflection is returned when a channel did not move under the
// reference mass.
var ErrNoDeflection = errors.New("load cell did not respond to the reference mass")

// CalibrationFactor converts the raw deflection measured under knownKg into
// the gain used by the scale: raw counts per kilogram.
func CalibrationFactor(deltaCounts, knownKg float64) (float64, error) {
	if knownKg <= 0 {
		return 0, fmt.Errorf("reference mass must be positive, got %v", knownKg)
	}
	if math.Abs(deltaCounts) < 1 {
		return 0, ErrNoDeflection
	}
	return deltaCounts / knownKg, nil
}

// RunCalibration walks the operator through zeroing and placing a known
// mass over each load cell in turn, then writes the channel section of the
// config with the measured factors to out.
func RunCalibration(bank weight.Bank, channels []config.ChannelConfig, knownKg float64, samples int, in io.Reader, out io.Writer) ([]config.ChannelConfig, error) {
	if len(channels) != weight.ChannelCount {
		return nil, fmt.Errorf("need %d channels, have %d", weight.ChannelCount, len(channels))
	}
	if samples < 1 {
		samples = 1
	}

	s := weight.NewScale(bank, samples)
	if err := s.BeginChannels(); err != nil {
		return nil, err
	}
	// Unit gain: ReadAll then returns raw counts above the zero point.
	if err := s.ApplyCalibration([weight.ChannelCount]float64{1, 1, 1, 1}); err != nil {
		return nil, err
	}

	prompt := bufio.NewScanner(in)
	wait := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+" and press Enter... ", args...)
		prompt.Scan()
	}

	wait("Empty the bin")
	if err := s.ZeroAll(); err != nil {
		return nil, fmt.Errorf("zero: %w", err)
	}
	fmt.Fprintf(out, "zero points: %v\n", s.Offsets())

	result := make([]config.ChannelConfig, len(channels))
	copy(result, channels)
	for i := range result {
		wait("Place %.3f kg directly over load cell %d (%s)", knownKg, i+1, result[i].Name)

		var sum float64
		for n := 0; n < samples; n++ {
			r, err := s.ReadAll()
			if err != nil {
				return nil, fmt.Errorf("read: %w", err)
			}
			sum += r.Masses[i]
		}
		factor, err := CalibrationFactor(sum/float64(samples), knownKg)
		if err != nil {
			return nil, fmt.Errorf("channel %d (%s): %w", i+1, result[i].Name, err)
		}
		result[i].CalibrationFactor = math.Round(factor)
		fmt.Fprintf(out, "channel %d (%s): factor %.0f\n", i+1, result[i].Name, result[i].CalibrationFactor)

		wait("Remove the mass")
	}

	snippet, err := yaml.Marshal(struct {
		Channels []config.ChannelConfig `yaml:"channels"`
	}{result})
	if err != nil {
		return nil, fmt.Errorf("marshal channels: %w", err)
	}
	fmt.Fprintf(out, "\n# paste into the node config\n%s", snippet)
	return result, nil
}
