package weight

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedChannel returns value on every read, or err when set.
type fixedChannel struct {
	value int32
	err   error
	reads int
}

func (c *fixedChannel) ReadRaw() (int32, error) {
	c.reads++
	return c.value, c.err
}

type staticBank struct {
	chans [ChannelCount]*fixedChannel
	err   error
}

func (b *staticBank) Open() ([ChannelCount]RawChannel, error) {
	var out [ChannelCount]RawChannel
	if b.err != nil {
		return out, b.err
	}
	for i, c := range b.chans {
		out[i] = c
	}
	return out, nil
}

func newBank(values ...int32) *staticBank {
	b := &staticBank{}
	for i := range b.chans {
		b.chans[i] = &fixedChannel{value: values[i]}
	}
	return b
}

func TestZeroThenReadIsZero(t *testing.T) {
	bank := newBank(8123, -4410, 120000, 77)
	s := NewScale(bank, 10)
	require.NoError(t, s.BeginChannels())
	require.NoError(t, s.ApplyCalibration([ChannelCount]float64{-17900, -18100, -17900, -17100}))
	require.NoError(t, s.ZeroAll())

	r, err := s.ReadAll()
	require.NoError(t, err)
	for i, m := range r.Masses {
		assert.InDelta(t, 0, m, 1e-9, "channel %d", i+1)
	}
	assert.InDelta(t, 0, r.Total, 1e-9)
	assert.Equal(t, [ChannelCount]int64{8123, -4410, 120000, 77}, s.Offsets())
	assert.Equal(t, 11, bank.chans[0].reads, "ten tare samples plus one reading")
}

func TestReadAllConverts(t *testing.T) {
	bank := newBank(1000, 2000, 3000, 4000)
	s := NewScale(bank, 1)
	require.NoError(t, s.BeginChannels())
	require.NoError(t, s.ApplyCalibration([ChannelCount]float64{100, 200, -100, 50}))
	require.NoError(t, s.SetOffsets([ChannelCount]int64{0, 1000, 4000, 4000}))

	r, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [ChannelCount]float64{10, 5, 10, 0}, r.Masses)
	assert.Equal(t, 25.0, r.Total)
}

func TestApplyCalibrationRejectsZero(t *testing.T) {
	s := NewScale(newBank(0, 0, 0, 0), 1)
	require.NoError(t, s.BeginChannels())
	err := s.ApplyCalibration([ChannelCount]float64{1, 0, 1, 1})
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestNotStarted(t *testing.T) {
	s := NewScale(newBank(0, 0, 0, 0), 1)
	_, err := s.ReadAll()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, s.ZeroAll(), ErrNotStarted)
	assert.ErrorIs(t, s.SetOffsets([ChannelCount]int64{}), ErrNotStarted)
}

func TestBeginChannelsFailure(t *testing.T) {
	boom := errors.New("no hx711")
	s := NewScale(&staticBank{err: boom}, 1)
	assert.ErrorIs(t, s.BeginChannels(), boom)
}

func TestZeroAllKeepsOffsetsOnFault(t *testing.T) {
	bank := newBank(10, 20, 30, 40)
	s := NewScale(bank, 1)
	require.NoError(t, s.BeginChannels())
	require.NoError(t, s.SetOffsets([ChannelCount]int64{1, 2, 3, 4}))

	bank.chans[2].err = errors.New("timeout")
	require.Error(t, s.ZeroAll())
	assert.Equal(t, [ChannelCount]int64{1, 2, 3, 4}, s.Offsets())
}

func TestFormatMass(t *testing.T) {
	assert.Equal(t, "12.35", FormatMass(12.3456))
	assert.Equal(t, "0.00", FormatMass(0))
	assert.Equal(t, "-3.10", FormatMass(-3.1))
}

func TestFormatMassNegativeZero(t *testing.T) {
	raw := 0.0
	assert.Equal(t, "0.00", FormatMass(raw/-17900))
}
