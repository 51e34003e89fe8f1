package input

import (
	"EyeWear/internal/mode"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestTimingClassifies(t *testing.T) {
	t.Parallel()

	t.Run("long press", func(t *testing.T) {
		tm := NewTiming(time.Second, 500*time.Millisecond)
		_, ok := tm.Down(at(0))
		require.False(t, ok)
		ev, ok := tm.Up(at(1200))
		require.True(t, ok)
		require.Equal(t, mode.LongPress, ev)
		_, pending := tm.Deadline()
		require.False(t, pending)
	})

	t.Run("double tap", func(t *testing.T) {
		tm := NewTiming(time.Second, 500*time.Millisecond)
		tm.Down(at(0))
		_, ok := tm.Up(at(100))
		require.False(t, ok)
		_, ok = tm.Down(at(400))
		require.False(t, ok)
		ev, ok := tm.Up(at(450))
		require.True(t, ok)
		require.Equal(t, mode.DoubleTap, ev)
	})

	t.Run("single tap after window", func(t *testing.T) {
		tm := NewTiming(time.Second, 500*time.Millisecond)
		tm.Down(at(0))
		tm.Up(at(100))
		dl, ok := tm.Deadline()
		require.True(t, ok)
		require.Equal(t, at(600), dl)

		_, ok = tm.Expire(at(599))
		require.False(t, ok)
		ev, ok := tm.Expire(dl)
		require.True(t, ok)
		require.Equal(t, mode.SingleTap, ev)
	})

	t.Run("late second press yields two singles", func(t *testing.T) {
		tm := NewTiming(time.Second, 500*time.Millisecond)
		tm.Down(at(0))
		tm.Up(at(100))
		ev, ok := tm.Down(at(800))
		require.True(t, ok)
		require.Equal(t, mode.SingleTap, ev)
		_, ok = tm.Up(at(900))
		require.False(t, ok)
		ev, ok = tm.Expire(at(1500))
		require.True(t, ok)
		require.Equal(t, mode.SingleTap, ev)
	})

	t.Run("release without press", func(t *testing.T) {
		tm := NewTiming(0, 0)
		_, ok := tm.Up(at(10))
		require.False(t, ok)
	})
}

func TestClassifierTable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code uint16
		want []mode.Event
	}{
		{keyPlayPause, []mode.Event{mode.SingleTap}},
		{keyPlayCD, []mode.Event{mode.SingleTap}},
		{keyPauseCD, []mode.Event{mode.SingleTap}},
		{keyNextSong, []mode.Event{mode.DoubleTap}},
		{keyPreviousSong, []mode.Event{mode.LongPress}},
		{keyVoiceCommand, []mode.Event{mode.LongPress}},
		{115, nil}, // KEY_VOLUMEUP
	}
	for _, tt := range tests {
		c := newClassifier(Config{}.withDefaults())
		require.Equal(t, tt.want, c.key(keyEvent{code: tt.code, value: keyStateDown, at: t0}), "code %d", tt.code)
		require.Empty(t, c.key(keyEvent{code: tt.code, value: keyStateUp, at: t0}), "release of %d", tt.code)
		require.Empty(t, c.key(keyEvent{code: tt.code, value: 2, at: t0}), "repeat of %d", tt.code)
	}
}

func TestClassifierTimedKey(t *testing.T) {
	t.Parallel()
	c := newClassifier(Config{}.withDefaults())
	require.Empty(t, c.key(keyEvent{code: keyEnter, value: keyStateDown, at: at(0)}))
	require.Equal(t, []mode.Event{mode.LongPress}, c.key(keyEvent{code: keyEnter, value: keyStateUp, at: at(1500)}))

	require.Empty(t, c.key(keyEvent{code: btn0, value: keyStateDown, at: at(2000)}))
	require.Empty(t, c.key(keyEvent{code: btn0, value: keyStateUp, at: at(2100)}))
	ev, ok := c.expire(at(2700))
	require.True(t, ok)
	require.Equal(t, mode.SingleTap, ev)
}

func encodeEvent(typ, code uint16, value int32, ts time.Time) []byte {
	rec := make([]byte, eventSize)
	if timevalSize == 16 {
		binary.NativeEndian.PutUint64(rec[0:], uint64(ts.Unix()))
		binary.NativeEndian.PutUint64(rec[8:], uint64(ts.Nanosecond()/1000))
	} else {
		binary.NativeEndian.PutUint32(rec[0:], uint32(ts.Unix()))
		binary.NativeEndian.PutUint32(rec[4:], uint32(ts.Nanosecond()/1000))
	}
	binary.NativeEndian.PutUint16(rec[timevalSize:], typ)
	binary.NativeEndian.PutUint16(rec[timevalSize+2:], code)
	binary.NativeEndian.PutUint32(rec[timevalSize+4:], uint32(value))
	return rec
}

func TestDecodeEvents(t *testing.T) {
	t.Parallel()
	ts := t0.Add(250 * time.Millisecond)
	var buf []byte
	buf = append(buf, encodeEvent(0x04, 4, 0x90001, ts)...) // EV_MSC
	buf = append(buf, encodeEvent(evKey, keyPlayPause, keyStateDown, ts)...)
	buf = append(buf, encodeEvent(0x00, 0, 0, ts)...) // EV_SYN
	buf = append(buf, 0xff, 0xff)                     // обрывок записи

	evs := decodeEvents(buf)
	require.Len(t, evs, 1)
	require.Equal(t, uint16(keyPlayPause), evs[0].code)
	require.Equal(t, int32(keyStateDown), evs[0].value)
	require.True(t, ts.Equal(evs[0].at))
}

func TestExcluded(t *testing.T) {
	t.Parallel()
	require.True(t, excluded("vc4-hdmi-0", []string{"hdmi"}))
	require.True(t, excluded("HDMI CEC", []string{" hdmi "}))
	require.False(t, excluded("AirPods Pro (AVRCP)", []string{"hdmi", ""}))
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	in, err := ParseLine(" roc ")
	require.NoError(t, err)
	require.Equal(t, Command, in.Kind)
	require.Equal(t, mode.StartOcr, in.Action)

	in, err = ParseLine("long")
	require.NoError(t, err)
	require.Equal(t, Press, in.Kind)
	require.Equal(t, mode.LongPress, in.Event)

	_, err = ParseLine("dance")
	require.ErrorIs(t, err, ErrUnknownLine)
}

func TestLinesSource(t *testing.T) {
	t.Parallel()
	src := Lines(strings.NewReader("cc\n\nbogus\nd\nh\n"), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(context.Background()) }()

	var got []Input
	for in := range src.Events() {
		require.False(t, in.At.IsZero())
		got = append(got, in)
	}
	require.NoError(t, <-errCh)
	require.Len(t, got, 3)
	require.Equal(t, mode.StartCall, got[0].Action)
	require.Equal(t, mode.DoubleTap, got[1].Event)
	require.Equal(t, mode.HangUp, got[2].Action)
}

func TestEvdevReadsAndReconnects(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	var opens atomic.Int32
	src := NewEvdev(Config{Reconnect: 10 * time.Millisecond}, nil)
	src.open = func(Config) (*device, error) {
		if opens.Add(1) == 1 {
			return nil, ErrNoDevice
		}
		return &device{path: "pipe", name: "test headset", f: r}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx) }()

	now := time.Now()
	_, err = w.Write(append(encodeEvent(evKey, keyNextSong, keyStateDown, now),
		encodeEvent(evKey, keyNextSong, keyStateUp, now)...))
	require.NoError(t, err)

	select {
	case in := <-src.Events():
		require.Equal(t, Press, in.Kind)
		require.Equal(t, mode.DoubleTap, in.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no event from device")
	}
	require.GreaterOrEqual(t, opens.Load(), int32(2))

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestEvdevSingleTapExpires(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	src := NewEvdev(Config{DoubleTapWindow: 50 * time.Millisecond}, nil)
	src.open = func(Config) (*device, error) { return &device{path: "pipe", f: r}, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	now := time.Now()
	_, err = w.Write(append(encodeEvent(evKey, keyEnter, keyStateDown, now),
		encodeEvent(evKey, keyEnter, keyStateUp, now.Add(20*time.Millisecond))...))
	require.NoError(t, err)

	select {
	case in := <-src.Events():
		require.Equal(t, mode.SingleTap, in.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("single tap not emitted after window")
	}
}

func TestEvdevUnsupportedIsFatal(t *testing.T) {
	t.Parallel()
	src := NewEvdev(Config{}, nil)
	src.open = func(Config) (*device, error) { return nil, ErrUnsupported }
	require.True(t, errors.Is(src.Run(context.Background()), ErrUnsupported))
	_, open := <-src.Events()
	require.False(t, open)
}
