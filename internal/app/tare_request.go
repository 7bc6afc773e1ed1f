// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
)

// RunTareRequest asks the node to re-zero. The node only listens for a
// moment after each wake and refuses retained commands, so the request is
// repeated every interval until the confirmation arrives or ctx ends.
func RunTareRequest(ctx context.Context, interval time.Duration, log logging.Logger) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDConsole + "-tare")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	confirmed := make(chan string, 1)
	token := client.Subscribe(cfg.Topics.TareConfirm, 1, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case confirmed <- string(msg.Payload()):
		default:
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Topics.TareConfirm, token.Error())
	}

	publish := func() error {
		token := client.Publish(cfg.Topics.Tare, 1, false, cfg.Tare.Token)
		if token.Wait() && token.Error() != nil {
			return token.Error()
		}
		return nil
	}

	log.Infof("tare: requesting on %s every %s, waiting for the node's next wake", cfg.Topics.Tare, interval)
	msg, err := requestUntilConfirmed(ctx, publish, confirmed, interval, log)
	if err != nil {
		return err
	}
	log.Infof("tare: node confirmed: %s", msg)
	return nil
}

// requestUntilConfirmed calls publish at once and then every interval until
// a confirmation is received. A failed publish is retried on the next tick.
func requestUntilConfirmed(ctx context.Context, publish func() error, confirmed <-chan string, interval time.Duration, log logging.Logger) (string, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := publish(); err != nil {
			log.Warnf("tare: publish request: %v", err)
		}
		select {
		case msg := <-confirmed:
			return msg, nil
		case <-ctx.Done():
			return "", fmt.Errorf("no confirmation: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
