package cycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/smartbin/internal/battery"
	"github.com/relabs-tech/smartbin/internal/clock"
	"github.com/relabs-tech/smartbin/internal/retained"
	"github.com/relabs-tech/smartbin/internal/weight"
)

type message struct{ topic, payload string }

type fakeLink struct {
	connectErr error
	publishErr error
	commands   map[int][]string // poll round -> payloads arriving in it
	queue      []string
	loaded     bool
	polls      int // completed poll rounds
	published  []message
	closed     bool
}

func (l *fakeLink) Connect(ctx context.Context) error { return l.connectErr }

func (l *fakeLink) Publish(topic, payload string) error {
	if l.publishErr != nil {
		return l.publishErr
	}
	l.published = append(l.published, message{topic, payload})
	return nil
}

// Poll hands out the payloads of the current round in order. An empty
// poll ends the round.
func (l *fakeLink) Poll() ([]byte, bool) {
	if !l.loaded {
		l.queue = append(l.queue, l.commands[l.polls]...)
		l.loaded = true
	}
	if len(l.queue) == 0 {
		l.polls++
		l.loaded = false
		return nil, false
	}
	p := l.queue[0]
	l.queue = l.queue[1:]
	return []byte(p), true
}

func (l *fakeLink) Close() { l.closed = true }

func (l *fakeLink) payloads(topic string) []string {
	var out []string
	for _, m := range l.published {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

// rawChannel returns *value, so tests can move the load between reads.
type rawChannel struct {
	value *int32
	err   *error
}

func (c rawChannel) ReadRaw() (int32, error) {
	if *c.err != nil {
		return 0, *c.err
	}
	return *c.value, nil
}

type rawBank struct {
	values [weight.ChannelCount]int32
	err    error
}

func (b *rawBank) Open() ([weight.ChannelCount]weight.RawChannel, error) {
	var out [weight.ChannelCount]weight.RawChannel
	for i := range out {
		out[i] = rawChannel{value: &b.values[i], err: &b.err}
	}
	return out, nil
}

type fakeGauge struct{ pct, volt float64 }

func (g fakeGauge) Percent() (float64, error) { return g.pct, nil }
func (g fakeGauge) Voltage() (float64, error) { return g.volt, nil }

type brokenGauge struct{}

func (brokenGauge) Percent() (float64, error) { return 0, errors.New("i2c: no ack") }
func (brokenGauge) Voltage() (float64, error) { return 0, errors.New("i2c: no ack") }

type fakeDisplay struct {
	a, b bool
	sets int
	err  error
}

func (d *fakeDisplay) Set(a, b bool) error {
	if d.err != nil {
		return d.err
	}
	d.a, d.b = a, b
	d.sets++
	return nil
}

type rig struct {
	link    *fakeLink
	bank    *rawBank
	display *fakeDisplay
	store   *retained.MemoryStore
	clock   *clock.Fake
	sleeper *clock.Fake
	ctrl    *Controller
}

func testOptions() Options {
	return Options{
		Topics: Topics{
			Channels:    [4]string{"esp32/one", "esp32/two", "esp32/three", "esp32/four"},
			Total:       "esp32/total",
			Battery:     "esp32/battery",
			TareConfirm: "esp32/hastared",
		},
		Calibration:       [4]float64{-100, -100, -100, -100},
		TareToken:         "true",
		TareConfirmation:  "Successfully tared!",
		DefaultSleepHours: 1,
		ListenIterations:  10,
		ListenDelay:       100 * time.Millisecond,
		SettleDelay:       time.Second,
	}
}

func newRig(initial *retained.State, pct float64) *rig {
	r := &rig{
		link:    &fakeLink{},
		bank:    &rawBank{values: [4]int32{1000, 2000, 3000, 4000}},
		display: &fakeDisplay{},
		store:   retained.NewMemoryStore(initial),
		clock:   &clock.Fake{},
		sleeper: &clock.Fake{},
	}
	r.ctrl = New(testOptions(), Deps{
		Link:    r.link,
		Scale:   weight.NewScale(r.bank, 3),
		Gauge:   fakeGauge{pct: pct, volt: 3.9},
		Display: r.display,
		Store:   r.store,
		Clock:   r.clock,
		Sleeper: r.sleeper,
	})
	return r
}

func TestColdStart(t *testing.T) {
	r := newRig(nil, 55)

	rep, err := r.ctrl.Run(context.Background())
	require.NoError(t, err)

	st, err := r.store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), st.TareEpoch)
	assert.Equal(t, [4]int64{1000, 2000, 3000, 4000}, st.Offsets)
	assert.Equal(t, 1.0, st.SleepHours)
	assert.Equal(t, 1, r.store.Saves())
	assert.Equal(t, st, rep.State)

	for _, topic := range []string{"esp32/one", "esp32/two", "esp32/three", "esp32/four", "esp32/total"} {
		assert.Equal(t, []string{"0.00"}, r.link.payloads(topic), topic)
	}
	assert.Equal(t, []string{"55.00"}, r.link.payloads("esp32/battery"))
	assert.Empty(t, r.link.payloads("esp32/hastared"))
	assert.True(t, r.link.closed)
	assert.Equal(t, []time.Duration{time.Hour}, r.sleeper.Sleeps())
}

func TestColdStartIgnoresPriorLoad(t *testing.T) {
	r := newRig(nil, 55)
	r.bank.values = [4]int32{-250000, 90000, 17, 4}

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, rep.Reading.Total, 1e-9)
	assert.Equal(t, [4]int64{-250000, 90000, 17, 4}, rep.State.Offsets)
}

func TestWarmWakeUsesRestoredOffsets(t *testing.T) {
	initial := retained.State{SleepHours: 0.5, TareEpoch: 1, Offsets: [4]int64{0, 1000, 2000, 3000}}
	r := newRig(&initial, 55)

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)

	// (raw - offset) / -100
	assert.Equal(t, [4]float64{-10, -10, -10, -10}, rep.Reading.Masses)
	assert.Equal(t, -40.0, rep.Reading.Total)
	assert.Equal(t, []string{"-40.00"}, r.link.payloads("esp32/total"))
	assert.Equal(t, initial, rep.State)

	st, err := r.store.Load()
	require.NoError(t, err)
	assert.Equal(t, initial, st)
}

func TestRemoteTareAccepted(t *testing.T) {
	initial := retained.State{SleepHours: 1, TareEpoch: 1, Offsets: [4]int64{0, 0, 0, 0}}
	r := newRig(&initial, 55)
	r.link.commands = map[int][]string{3: {"true"}, 5: {"true"}}

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Tared)
	assert.Equal(t, [4]int64{1000, 2000, 3000, 4000}, rep.State.Offsets)
	assert.Equal(t, []string{"Successfully tared!"}, r.link.payloads("esp32/hastared"), "one command per window")

	st, err := r.store.Load()
	require.NoError(t, err)
	assert.Equal(t, [4]int64{1000, 2000, 3000, 4000}, st.Offsets)
	assert.Equal(t, 1, r.store.Saves())
}

func TestMalformedCommandDoesNotHideTare(t *testing.T) {
	initial := retained.State{SleepHours: 1, TareEpoch: 1, Offsets: [4]int64{5, 5, 5, 5}}
	r := newRig(&initial, 55)
	r.link.commands = map[int][]string{0: {"false", "true", "true"}}

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Tared)
	assert.Equal(t, [4]int64{1000, 2000, 3000, 4000}, rep.State.Offsets)
	assert.Equal(t, []string{"Successfully tared!"}, r.link.payloads("esp32/hastared"))
}

func TestRemoteTareRejected(t *testing.T) {
	for _, payload := range []string{"TRUE", "false", "1", ""} {
		t.Run(fmt.Sprintf("%q", payload), func(t *testing.T) {
			initial := retained.State{SleepHours: 1, TareEpoch: 1, Offsets: [4]int64{5, 5, 5, 5}}
			r := newRig(&initial, 55)
			r.link.commands = map[int][]string{0: {payload}}

			rep, err := r.ctrl.Wake(context.Background())
			require.NoError(t, err)
			assert.False(t, rep.Tared)
			assert.Empty(t, r.link.payloads("esp32/hastared"))
			assert.Equal(t, initial.Offsets, rep.State.Offsets)
		})
	}
}

func TestCommandAfterWindowIsLost(t *testing.T) {
	initial := retained.State{SleepHours: 1, TareEpoch: 1}
	r := newRig(&initial, 55)
	r.link.commands = map[int][]string{10: {"true"}}

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Tared)
	assert.Equal(t, 10, r.link.polls)
}

func TestListenWindowTiming(t *testing.T) {
	r := newRig(nil, 55)
	_, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)

	want := []time.Duration{time.Second}
	for i := 0; i < 10; i++ {
		want = append(want, 100*time.Millisecond)
	}
	assert.Equal(t, want, r.clock.Sleeps())
}

func TestTransportNeverConnectsLeavesStateUntouched(t *testing.T) {
	initial := retained.State{SleepHours: 2, TareEpoch: 1, Offsets: [4]int64{9, 8, 7, 6}}
	r := newRig(&initial, 55)
	r.link.connectErr = context.Canceled

	_, err := r.ctrl.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	st, lerr := r.store.Load()
	require.NoError(t, lerr)
	assert.Equal(t, initial, st)
	assert.Zero(t, r.store.Saves())
	assert.Empty(t, r.sleeper.Sleeps(), "no early sleep")
	assert.Empty(t, r.link.published)
}

func TestCancelDuringListenWindowDoesNotSave(t *testing.T) {
	r := newRig(nil, 55)
	ctx, cancel := context.WithCancel(context.Background())
	r.clock.OnSleep = func(n int, _ time.Duration) {
		if n == 4 {
			cancel()
		}
	}

	_, err := r.ctrl.Wake(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.store.Saves())
}

func TestHardwareFaultDoesNotSave(t *testing.T) {
	initial := retained.State{SleepHours: 1, TareEpoch: 1, Offsets: [4]int64{1, 2, 3, 4}}
	r := newRig(&initial, 55)
	r.bank.err = errors.New("hx711 not ready")

	_, err := r.ctrl.Wake(context.Background())
	require.Error(t, err)
	assert.Zero(t, r.store.Saves())
	assert.Empty(t, r.link.published)
}

func TestPublishFailureStillPersists(t *testing.T) {
	r := newRig(nil, 55)
	r.link.publishErr = errors.New("broker went away")

	_, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.store.Saves())
}

type corruptStore struct{ *retained.MemoryStore }

func (c corruptStore) Load() (retained.State, error) {
	return retained.State{}, fmt.Errorf("%w: checksum mismatch", retained.ErrCorrupt)
}

func TestCorruptRecordIsColdStart(t *testing.T) {
	r := newRig(nil, 55)
	store := corruptStore{retained.NewMemoryStore(nil)}
	r.ctrl.deps.Store = store

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rep.State.TareEpoch)
	assert.Equal(t, 1, store.Saves())
}

func TestBatteryIndicatorScenario(t *testing.T) {
	tests := []struct {
		pct  float64
		want battery.Indicator
		a, b bool
	}{
		{5, battery.Low, false, true},
		{55, battery.Normal, false, false},
		{105, battery.High, true, false},
	}
	for _, tt := range tests {
		r := newRig(nil, tt.pct)
		rep, err := r.ctrl.Wake(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, rep.Battery.Indicator)
		assert.Equal(t, tt.a, r.display.a, "A at %v%%", tt.pct)
		assert.Equal(t, tt.b, r.display.b, "B at %v%%", tt.pct)
		assert.Equal(t, []string{fmt.Sprintf("%.2f", tt.pct)}, r.link.payloads("esp32/battery"))
	}
}

func TestGaugeFaultIsReportedNotFatal(t *testing.T) {
	r := newRig(nil, 55)
	r.ctrl.deps.Gauge = brokenGauge{}
	r.display.a = true // left over from the previous wake

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.BatteryRead)
	assert.Equal(t, battery.Status{}, rep.Battery)
	assert.Empty(t, r.link.payloads("esp32/battery"))
	assert.Zero(t, r.display.sets)
	assert.True(t, r.display.a, "indicator untouched")
	assert.Equal(t, 1, r.store.Saves())
}

func TestIndicatorFaultStillPublishesBattery(t *testing.T) {
	r := newRig(nil, 5)
	r.display.err = errors.New("gpio busy")

	rep, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.BatteryRead)
	assert.Equal(t, battery.Low, rep.Battery.Indicator)
	assert.Equal(t, []string{"5.00"}, r.link.payloads("esp32/battery"))
	assert.Equal(t, 1, r.store.Saves())
}

// orderedStore checks that the link is down when the record is written.
type orderedStore struct {
	*retained.MemoryStore
	link         *fakeLink
	closedAtSave bool
}

func (s *orderedStore) Save(st retained.State) error {
	s.closedAtSave = s.link.closed
	return s.MemoryStore.Save(st)
}

func TestLinkClosedBeforeSave(t *testing.T) {
	r := newRig(nil, 55)
	store := &orderedStore{MemoryStore: retained.NewMemoryStore(nil), link: r.link}
	r.ctrl.deps.Store = store

	_, err := r.ctrl.Wake(context.Background())
	require.NoError(t, err)
	assert.True(t, store.closedAtSave)
	assert.Equal(t, 1, store.Saves())
}
