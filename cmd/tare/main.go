// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command tare asks the bin to re-zero on its next wake and waits for the
// confirmation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/smartbin/internal/app"
	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
)

func main() {
	configPath := flag.String("config", "smartbin.yaml", "Path to configuration file")
	// The node only listens for a moment once per wake, so the default
	// covers one full default sleep interval.
	timeout := flag.Duration("timeout", 65*time.Minute, "How long to wait for the node to confirm")
	interval := flag.Duration("interval", 500*time.Millisecond, "How often the request is repeated")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := logging.New(logging.Options{Debug: config.Get().Log.Debug})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := app.RunTareRequest(ctx, *interval, log); err != nil {
		log.Errorf("tare: %v", err)
		closeLog()
		os.Exit(1)
	}
}
