// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger denotes the log interface the node's packages depend on.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// NullLogger denotes a null-op logger that ignores all messages
type NullLogger struct{}

func (l *NullLogger) Errorf(format string, args ...interface{}) {}

func (l *NullLogger) Warnf(format string, args ...interface{}) {}

func (l *NullLogger) Infof(format string, args ...interface{}) {}

func (l *NullLogger) Debugf(format string, args ...interface{}) {}

// Options selects the log level and an optional serial console mirror.
type Options struct {
	Debug      bool
	SerialPort string
	SerialBaud uint
}

// New builds the node logger. When a serial port is configured every line
// is also written to it, like the node's UART console. The returned close
// function flushes the logger and releases the port.
func New(opts Options) (*zap.SugaredLogger, func(), error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	logCfg := zap.NewDevelopmentConfig()
	logCfg.DisableStacktrace = true
	logCfg.DisableCaller = level > zap.DebugLevel
	logCfg.Level.SetLevel(level)

	var (
		port    io.ReadWriteCloser
		buildOp []zap.Option
	)
	if opts.SerialPort != "" {
		var err error
		port, err = serial.Open(serial.OpenOptions{
			PortName:        opts.SerialPort,
			BaudRate:        opts.SerialBaud,
			DataBits:        8,
			StopBits:        1,
			MinimumReadSize: 1,
			ParityMode:      serial.PARITY_NONE,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open serial console %s: %w", opts.SerialPort, err)
		}
		console := zapcore.NewCore(
			zapcore.NewConsoleEncoder(logCfg.EncoderConfig),
			zapcore.AddSync(port),
			logCfg.Level,
		)
		buildOp = append(buildOp, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, console)
		}))
	}

	zapLogger, err := logCfg.Build(buildOp...)
	if err != nil {
		if port != nil {
			port.Close()
		}
		return nil, nil, fmt.Errorf("failed to instantiate logger: %w", err)
	}

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			_ = zapLogger.Sync()
			if port != nil {
				port.Close()
			}
		})
	}
	return zapLogger.Sugar(), closeFn, nil
}
