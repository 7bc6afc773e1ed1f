// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided bench calibration of the four load cells.
//
// The bin is zeroed empty, then a reference mass is placed over each load
// cell in turn. The resulting per-channel factors are printed as a YAML
// snippet for the node config.
//
// Run:
//
//	go run ./cmd/calibration -mass 2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/smartbin/internal/app"
	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
	"github.com/relabs-tech/smartbin/internal/sensors"
	"github.com/relabs-tech/smartbin/internal/weight"
)

func main() {
	configPath := flag.String("config", "smartbin.yaml", "Path to configuration file")
	mass := flag.Float64("mass", 1.0, "Reference mass in kilograms")
	samples := flag.Int("samples", 0, "Raw reads averaged per step (default: tare.samples)")
	flag.Parse()

	fmt.Println("=== Load cell calibration ===")
	fmt.Println()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()

	log, closeLog, err := logging.New(logging.Options{Debug: cfg.Log.Debug})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	n := *samples
	if n <= 0 {
		n = cfg.Tare.Samples
	}

	var bank weight.Bank
	if cfg.Mock.Enabled {
		bank = sensors.NewMockBank(cfg.Mock, cfg.Channels)
	} else {
		bank = sensors.NewLoadCellBank(cfg.Channels, cfg.Cycle.ChannelTimeout, log)
	}

	if _, err := app.RunCalibration(bank, cfg.Channels, *mass, n, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		closeLog()
		os.Exit(1)
	}
	fmt.Println("\nCalibration complete.")
}
