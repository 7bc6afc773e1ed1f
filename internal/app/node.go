// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/smartbin/internal/battery"
	"github.com/relabs-tech/smartbin/internal/clock"
	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/cycle"
	"github.com/relabs-tech/smartbin/internal/logging"
	"github.com/relabs-tech/smartbin/internal/retained"
	"github.com/relabs-tech/smartbin/internal/sensors"
	"github.com/relabs-tech/smartbin/internal/transport"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// NodeOptions selects how the node sleeps between wakes.
type NodeOptions struct {
	// Once runs a single wake and returns instead of sleeping. Used when a
	// system timer restarts the process, so the exit is the sleep.
	Once bool
}

// hardware is everything a wake touches besides the link and the store.
type hardware struct {
	bank    weight.Bank
	gauge   battery.Gauge
	display battery.Display
	closers []io.Closer
}

func (h *hardware) Close() {
	for _, c := range h.closers {
		c.Close()
	}
}

func openHardware(cfg *config.Config, log logging.Logger) (*hardware, error) {
	if cfg.Mock.Enabled {
		log.Infof("node: using mock load cells and gauge")
		return &hardware{
			bank:    sensors.NewMockBank(cfg.Mock, cfg.Channels),
			gauge:   sensors.MockGauge{Pct: cfg.Mock.Percent, Volt: cfg.Mock.Voltage},
			display: &sensors.MockIndicator{},
		}, nil
	}

	gauge, err := sensors.OpenFuelGauge(cfg.Battery.I2CBus, cfg.Battery.GaugeAddr)
	if err != nil {
		return nil, err
	}
	ind, err := sensors.OpenIndicator(cfg.Battery.IndicatorA, cfg.Battery.IndicatorB)
	if err != nil {
		gauge.Close()
		return nil, err
	}
	return &hardware{
		bank:    sensors.NewLoadCellBank(cfg.Channels, cfg.Cycle.ChannelTimeout, log),
		gauge:   gauge,
		display: ind,
		closers: []io.Closer{gauge},
	}, nil
}

func cycleOptions(cfg *config.Config) cycle.Options {
	return cycle.Options{
		Topics: cycle.Topics{
			Channels:    cfg.ChannelTopics(),
			Total:       cfg.Topics.Total,
			Battery:     cfg.Topics.Battery,
			TareConfirm: cfg.Topics.TareConfirm,
		},
		Calibration:       cfg.CalibrationFactors(),
		TareToken:         cfg.Tare.Token,
		TareConfirmation:  cfg.Tare.Confirmation,
		DefaultSleepHours: cfg.Cycle.DefaultSleepHours,
		ListenIterations:  cfg.Cycle.ListenIterations,
		ListenDelay:       cfg.Cycle.ListenDelay,
		SettleDelay:       cfg.Cycle.SettleDelay,
	}
}

// noSleep returns at once; in Once mode the process exit is the sleep.
type noSleep struct{ log logging.Logger }

func (n noSleep) Sleep(ctx context.Context, d time.Duration) error {
	n.log.Infof("node: next wake due in %s", d)
	return ctx.Err()
}

// RunNode runs the wake cycle until ctx is done. Every wake starts from
// scratch: fresh link, fresh channels, and only the retained record is
// carried over.
func RunNode(ctx context.Context, opts NodeOptions, log logging.Logger) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	store := retained.NewFileStore(cfg.Retained.Path)

	var sleeper clock.Clock = clock.System{}
	if opts.Once {
		sleeper = noSleep{log: log}
	}

	for wake := 1; ; wake++ {
		log.Infof("node: wake %d", wake)
		err := runWake(ctx, cfg, store, sleeper, log)
		switch {
		case ctx.Err() != nil:
			log.Infof("node: shutting down")
			return nil
		case err != nil && opts.Once:
			return err
		case err != nil:
			// Nothing was persisted; try again after the default interval
			// so a dead channel does not spin the CPU.
			log.Errorf("node: wake failed: %v", err)
			d := retained.State{SleepHours: cfg.Cycle.DefaultSleepHours}.SleepDuration()
			if err := sleeper.Sleep(ctx, d); err != nil {
				return nil
			}
		case opts.Once:
			return nil
		}
	}
}

func runWake(ctx context.Context, cfg *config.Config, store retained.Store, sleeper clock.Clock, log logging.Logger) error {
	hw, err := openHardware(cfg, log)
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer hw.Close()

	link := transport.Dial(transport.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		CommandTopic:   cfg.Topics.Tare,
		CommandQoS:     1,
		RetryDelay:     cfg.MQTT.ConnectRetryDelay,
		PublishTimeout: cfg.MQTT.PublishTimeout,
	}, clock.System{}, log)

	ctrl := cycle.New(cycleOptions(cfg), cycle.Deps{
		Link:    link,
		Scale:   weight.NewScale(hw.bank, cfg.Tare.Samples),
		Gauge:   hw.gauge,
		Display: hw.display,
		Store:   store,
		Clock:   clock.System{},
		Sleeper: sleeper,
		Log:     log,
	})
	rep, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	if rep.BatteryRead {
		log.Infof("node: total %s kg, battery %.2f%% (%s), tared=%v",
			weight.FormatMass(rep.Reading.Total), rep.Battery.Percent, rep.Battery.Indicator, rep.Tared)
	} else {
		log.Infof("node: total %s kg, battery unknown, tared=%v",
			weight.FormatMass(rep.Reading.Total), rep.Tared)
	}
	return nil
}
