// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/smartbin/internal/app"
	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
)

func main() {
	configPath := flag.String("config", "smartbin.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single wake cycle and exit")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	log, closeLog, err := logging.New(logging.Options{
		Debug:      cfg.Log.Debug,
		SerialPort: cfg.Log.SerialPort,
		SerialBaud: cfg.Log.SerialBaud,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("starting smartbin node (config %s)", *configPath)
	if err := app.RunNode(ctx, app.NodeOptions{Once: *once}, log); err != nil {
		log.Errorf("fatal: %v", err)
		closeLog()
		os.Exit(1)
	}
}
