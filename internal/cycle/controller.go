// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cycle runs one wake of the node: connect, measure, publish,
// listen for a tare command, persist and sleep.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/stopwatch"

	"github.com/relabs-tech/smartbin/internal/battery"
	"github.com/relabs-tech/smartbin/internal/clock"
	"github.com/relabs-tech/smartbin/internal/logging"
	"github.com/relabs-tech/smartbin/internal/retained"
	"github.com/relabs-tech/smartbin/internal/tare"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// Link is the messaging collaborator.
type Link interface {
	Connect(ctx context.Context) error
	Publish(topic, payload string) error
	Poll() ([]byte, bool)
	Close()
}

// Scale is weight acquisition as the cycle drives it.
type Scale interface {
	BeginChannels() error
	ApplyCalibration([weight.ChannelCount]float64) error
	ReadAll() (weight.Reading, error)
	tare.Scale
}

// Topics names every topic the cycle publishes on.
type Topics struct {
	Channels    [weight.ChannelCount]string
	Total       string
	Battery     string
	TareConfirm string
}

// Options are the fixed parameters of a wake.
type Options struct {
	Topics            Topics
	Calibration       [weight.ChannelCount]float64
	TareToken         string
	TareConfirmation  string
	DefaultSleepHours float64       // used when the retained record has none
	ListenIterations  int           // polls in the listen window
	ListenDelay       time.Duration // delay after each poll
	SettleDelay       time.Duration // pause before the listen window opens
}

// Deps are the collaborators of a wake. A fresh set is built for every
// wake so nothing but the retained record carries over.
type Deps struct {
	Link    Link
	Scale   Scale
	Gauge   battery.Gauge
	Display battery.Display
	Store   retained.Store
	Clock   clock.Clock // listen window and settle delay
	Sleeper clock.Clock // sleep between wakes
	Log     logging.Logger
}

// Controller sequences one wake.
type Controller struct {
	opts Options
	deps Deps
	tare *tare.Machine
}

// New creates a controller.
func New(opts Options, deps Deps) *Controller {
	if deps.Log == nil {
		deps.Log = &logging.NullLogger{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Sleeper == nil {
		deps.Sleeper = clock.System{}
	}
	return &Controller{
		opts: opts,
		deps: deps,
		tare: tare.New(deps.Scale, opts.TareToken, deps.Log),
	}
}

// Report summarizes a completed wake.
type Report struct {
	State       retained.State
	Reading     weight.Reading
	Battery     battery.Status
	// BatteryRead is false when the gauge failed; Battery is then zero
	// and the indicator was left as it was.
	BatteryRead bool
	Tared       bool
}

// Run performs one wake and then sleeps for the retained sleep duration.
// If the wake fails nothing is persisted and Run returns without sleeping.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	rep, err := c.Wake(ctx)
	if err != nil {
		return rep, err
	}
	d := rep.State.SleepDuration()
	c.deps.Log.Infof("cycle: sleeping for %s", d)
	if err := c.deps.Sleeper.Sleep(ctx, d); err != nil {
		return rep, fmt.Errorf("sleep: %w", err)
	}
	return rep, nil
}

// Wake runs steps 1 to 8 of the cycle and persists the record. Save is the
// last thing that happens and only after every network interaction has
// settled; any earlier error returns with the store untouched.
func (c *Controller) Wake(ctx context.Context) (Report, error) {
	sw := stopwatch.Start(0)
	log := c.deps.Log

	st, err := c.deps.Store.Load()
	switch {
	case errors.Is(err, retained.ErrCorrupt):
		log.Warnf("cycle: %v, treating as cold start", err)
		st = retained.State{}
	case err != nil:
		return Report{}, fmt.Errorf("load retained state: %w", err)
	}
	if st.SleepHours <= 0 {
		st.SleepHours = c.opts.DefaultSleepHours
	}
	log.Infof("cycle: wake in %s mode (epoch %d)", tare.ModeOf(st), st.TareEpoch)

	// 1. transport
	if err := c.deps.Link.Connect(ctx); err != nil {
		return Report{}, fmt.Errorf("connect: %w", err)
	}
	linkOpen := true
	defer func() {
		if linkOpen {
			c.deps.Link.Close()
		}
	}()

	// 2. channels and calibration
	if err := c.deps.Scale.BeginChannels(); err != nil {
		return Report{}, fmt.Errorf("begin channels: %w", err)
	}
	if err := c.deps.Scale.ApplyCalibration(c.opts.Calibration); err != nil {
		return Report{}, fmt.Errorf("apply calibration: %w", err)
	}

	// 3. tare state machine
	st, err = c.tare.Prepare(st)
	if err != nil {
		return Report{}, err
	}

	// 4. acquire
	reading, err := c.deps.Scale.ReadAll()
	if err != nil {
		return Report{}, fmt.Errorf("read weights: %w", err)
	}

	// 5. publish weights
	c.publishReading(reading)

	// 6. battery
	status, batteryRead := c.reportBattery()

	// 7. capture offsets after measurement
	st.Offsets = c.deps.Scale.Offsets()

	rep := Report{Reading: reading, Battery: status, BatteryRead: batteryRead}

	// 8. listen window
	if err := c.deps.Clock.Sleep(ctx, c.opts.SettleDelay); err != nil {
		return Report{}, err
	}
	st, rep.Tared, err = c.listen(ctx, st)
	if err != nil {
		return Report{}, err
	}

	// Disconnect first; Save is the last step of a wake.
	c.deps.Link.Close()
	linkOpen = false

	if err := c.deps.Store.Save(st); err != nil {
		return Report{}, fmt.Errorf("save retained state: %w", err)
	}
	rep.State = st
	log.Infof("cycle: wake finished in %s, offsets=%v", sw.ElapsedTime(), st.Offsets)
	return rep, nil
}

func (c *Controller) publishReading(r weight.Reading) {
	for i, m := range r.Masses {
		c.publish(c.opts.Topics.Channels[i], weight.FormatMass(m))
	}
	c.publish(c.opts.Topics.Total, weight.FormatMass(r.Total))
}

// reportBattery reads the gauge, publishes the percentage and drives the LEDs.
// A gauge fault is logged, reported as false and leaves the LEDs as they
// were.
func (c *Controller) reportBattery() (battery.Status, bool) {
	log := c.deps.Log
	status, err := battery.Read(c.deps.Gauge)
	if err != nil {
		log.Errorf("cycle: %v", err)
		return battery.Status{}, false
	}
	log.Infof("cycle: battery %.2f%% %.3fV -> %s", status.Percent, status.Voltage, status.Indicator)
	c.publish(c.opts.Topics.Battery, strconv.FormatFloat(status.Percent, 'f', 2, 64))
	if err := battery.Show(c.deps.Display, status); err != nil {
		log.Errorf("cycle: indicator: %v", err)
	}
	return status, true
}

// listen drains the link a fixed number of times. The first accepted tare
// command is applied; later or malformed commands are ignored.
func (c *Controller) listen(ctx context.Context, st retained.State) (retained.State, bool, error) {
	tared := false
	for i := 0; i < c.opts.ListenIterations; i++ {
		for {
			payload, ok := c.deps.Link.Poll()
			if !ok {
				break
			}
			if tared {
				c.deps.Log.Debugf("cycle: already tared this wake, ignoring %q", payload)
				continue
			}
			next, applied, err := c.tare.Apply(st, payload)
			if err != nil {
				return st, false, err
			}
			if applied {
				st, tared = next, true
				c.publish(c.opts.Topics.TareConfirm, c.opts.TareConfirmation)
			}
		}
		if err := c.deps.Clock.Sleep(ctx, c.opts.ListenDelay); err != nil {
			return st, false, err
		}
	}
	return st, tared, nil
}

func (c *Controller) publish(topic, payload string) {
	c.deps.Log.Infof("cycle: %s <- %s", topic, payload)
	if err := c.deps.Link.Publish(topic, payload); err != nil {
		c.deps.Log.Warnf("cycle: %v", err)
	}
}
