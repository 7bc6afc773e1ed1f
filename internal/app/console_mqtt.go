// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/smartbin/internal/config"
	"github.com/relabs-tech/smartbin/internal/logging"
)

// consoleLine formats one bin message for the console.
func consoleLine(label, payload string) string {
	return fmt.Sprintf("[%-7s] %s", label, payload)
}

// RunConsoleMQTT subscribes to every topic the node publishes and prints
// each message until interrupted.
func RunConsoleMQTT(log logging.Logger) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Infof("console: connected to MQTT broker at %s", cfg.MQTT.Broker)

	labels := map[string]string{
		cfg.Topics.Total:       "TOTAL",
		cfg.Topics.Battery:     "BATTERY",
		cfg.Topics.TareConfirm: "TARE",
	}
	for _, ch := range cfg.Channels {
		labels[ch.Topic] = ch.Name
	}

	for topic, label := range labels {
		label := label
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			fmt.Println(consoleLine(label, string(msg.Payload())))
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Infof("console: subscribed to %s", topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("console: shutting down")
	client.Disconnect(250)
	return nil
}
