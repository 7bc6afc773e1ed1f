// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/smartbin/internal/app"
	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
)

func main() {
	configPath := flag.String("config", "smartbin.yaml", "Path to configuration file")
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

	log.Infof("starting smartbin console (MQTT subscriber)")
	if err := app.RunConsoleMQTT(log); err != nil {
		log.Errorf("fatal: %v", err)
		closeLog()
		os.Exit(1)
	}
}
