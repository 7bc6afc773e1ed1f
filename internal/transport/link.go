// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport is the node's MQTT link: connect with fixed-delay
// retry, fire-and-forget publishes and a small queue of inbound commands.
package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/smartbin/internal/clock"
	"github.com/relabs-tech/smartbin/internal/logging"
)

// Options configures a Link.
type Options struct {
	Broker         string
	ClientID       string
	CommandTopic   string
	CommandQoS     byte
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

// InboxSize is how many inbound commands are queued between polls. Commands
// arriving while the queue is full are dropped.
const InboxSize = 8

// Link wraps a paho client. Inbound commands are queued in arrival order
// and the wake cycle drains them with Poll.
type Link struct {
	client mqtt.Client
	opts   Options
	clock  clock.Clock
	log    logging.Logger
	inbox  chan []byte
}

// NewClientOptions returns paho options for the node. Reconnect is left to
// the Link so a wake never sleeps before it is connected.
func NewClientOptions(o Options) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false)
}

// New creates a link over client. A nil clock uses the wall clock.
func New(client mqtt.Client, o Options, clk clock.Clock, log logging.Logger) *Link {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = &logging.NullLogger{}
	}
	return &Link{
		client: client,
		opts:   o,
		clock:  clk,
		log:    log,
		inbox:  make(chan []byte, InboxSize),
	}
}

// Dial creates a paho client from o and wraps it.
func Dial(o Options, clk clock.Clock, log logging.Logger) *Link {
	return New(mqtt.NewClient(NewClientOptions(o)), o, clk, log)
}

// Connect blocks until the broker accepts the connection and the command
// subscription is in place. Failures are retried after a fixed delay with
// no upper bound; only ctx ends the loop.
func (l *Link) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.log.Infof("mqtt: connecting to %s (attempt %d)", l.opts.Broker, attempt)
		err := l.connectOnce()
		if err == nil {
			l.log.Infof("mqtt: connected, subscribed to %s", l.opts.CommandTopic)
			return nil
		}
		l.log.Warnf("mqtt: %v, retrying in %s", err, l.opts.RetryDelay)
		if err := l.clock.Sleep(ctx, l.opts.RetryDelay); err != nil {
			return err
		}
	}
}

func (l *Link) connectOnce() error {
	if token := l.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	if l.opts.CommandTopic == "" {
		return nil
	}
	token := l.client.Subscribe(l.opts.CommandTopic, l.opts.CommandQoS, l.onCommand)
	if token.Wait() && token.Error() != nil {
		l.client.Disconnect(250)
		return fmt.Errorf("subscribe %s: %w", l.opts.CommandTopic, token.Error())
	}
	return nil
}

// onCommand queues a command. Retained messages are refused: a command
// only counts for the wake it was sent to.
func (l *Link) onCommand(_ mqtt.Client, msg mqtt.Message) {
	if msg.Retained() {
		l.log.Warnf("mqtt: ignoring retained command on %s", msg.Topic())
		return
	}
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case l.inbox <- payload:
		l.log.Debugf("mqtt: command on %s: %q", msg.Topic(), payload)
	default:
		l.log.Warnf("mqtt: inbox full, dropping command on %s", msg.Topic())
	}
}

// Publish sends payload on topic at QoS 0. The error is advisory: it only
// says this message did not go out.
func (l *Link) Publish(topic, payload string) error {
	token := l.client.Publish(topic, 0, false, payload)
	if l.opts.PublishTimeout > 0 {
		if !token.WaitTimeout(l.opts.PublishTimeout) {
			return fmt.Errorf("publish %s: timed out after %s", topic, l.opts.PublishTimeout)
		}
	} else {
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Poll returns the oldest pending command without blocking.
func (l *Link) Poll() ([]byte, bool) {
	select {
	case p := <-l.inbox:
		return p, true
	default:
		return nil, false
	}
}

// Close unsubscribes and disconnects. Commands that arrive afterwards are
// lost, which is what the node wants between wakes.
func (l *Link) Close() {
	if !l.client.IsConnected() {
		return
	}
	if l.opts.CommandTopic != "" {
		l.client.Unsubscribe(l.opts.CommandTopic).WaitTimeout(time.Second)
	}
	l.client.Disconnect(250)
	l.log.Debugf("mqtt: disconnected")
}
