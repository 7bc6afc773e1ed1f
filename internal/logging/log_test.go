package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutSerial(t *testing.T) {
	log, closeLog, err := New(Options{Debug: true})
	require.NoError(t, err)
	require.NotNil(t, log)

	var _ Logger = log
	log.Debugf("debug %d", 1)

	closeLog()
	assert.NotPanics(t, closeLog)
}

func TestNewBadSerialPort(t *testing.T) {
	_, _, err := New(Options{SerialPort: "/dev/does-not-exist-smartbin", SerialBaud: 115200})
	assert.Error(t, err)
}

func TestNullLogger(t *testing.T) {
	var l Logger = &NullLogger{}
	assert.NotPanics(t, func() {
		l.Errorf("x")
		l.Warnf("x")
		l.Infof("x")
		l.Debugf("x")
	})
}
