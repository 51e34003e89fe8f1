package input

import (
	"EyeWear/internal/mode"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

var (
	ErrNoDevice    = errors.New("input: no suitable device")
	ErrUnsupported = errors.New("input: evdev unavailable on this platform")
)

// struct input_event: timeval (два long) + type u16 + code u16 + value s32.
var (
	timevalSize = int(2 * unsafe.Sizeof(uintptr(0)))
	eventSize   = timevalSize + 8
)

type device struct {
	path string
	name string
	f    *os.File
}

func (d *device) Close() error { return d.f.Close() }

// read читает записи input_event, пока файл не вернёт ошибку или не закроется done.
func (d *device) read(done <-chan struct{}, out chan<- keyEvent) error {
	buf := make([]byte, eventSize*64)
	for {
		n, err := d.f.Read(buf)
		if err != nil {
			return err
		}
		for _, ev := range decodeEvents(buf[:n]) {
			select {
			case out <- ev:
			case <-done:
				return nil
			}
		}
	}
}

// decodeEvents разбирает буфер input_event и оставляет только EV_KEY.
func decodeEvents(buf []byte) []keyEvent {
	var out []keyEvent
	for off := 0; off+eventSize <= len(buf); off += eventSize {
		rec := buf[off : off+eventSize]
		if binary.NativeEndian.Uint16(rec[timevalSize:]) != evKey {
			continue
		}
		var sec, usec int64
		if timevalSize == 16 {
			sec = int64(binary.NativeEndian.Uint64(rec[0:]))
			usec = int64(binary.NativeEndian.Uint64(rec[8:]))
		} else {
			sec = int64(int32(binary.NativeEndian.Uint32(rec[0:])))
			usec = int64(int32(binary.NativeEndian.Uint32(rec[4:])))
		}
		out = append(out, keyEvent{
			code:  binary.NativeEndian.Uint16(rec[timevalSize+2:]),
			value: int32(binary.NativeEndian.Uint32(rec[timevalSize+4:])),
			at:    time.Unix(sec, usec*int64(time.Microsecond)),
		})
	}
	return out
}

func excluded(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Evdev — аппаратный источник: гарнитура или кнопка через /dev/input.
// Потеря устройства не фатальна: источник переподключается каждые Reconnect.
type Evdev struct {
	cfg    Config
	logger *zap.SugaredLogger
	out    chan Input
	open   func(Config) (*device, error)
}

func NewEvdev(cfg Config, logger *zap.SugaredLogger) *Evdev {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Evdev{
		cfg:    cfg.withDefaults(),
		logger: logger,
		out:    make(chan Input, 64),
		open:   openDevice,
	}
}

func (e *Evdev) Events() <-chan Input { return e.out }

func (e *Evdev) Run(ctx context.Context) error {
	defer close(e.out)
	for {
		dev, err := e.open(e.cfg)
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				return err
			}
			e.logger.Warnw("Input device not available", "error", err, "retry", e.cfg.Reconnect.String())
		} else {
			e.logger.Infow("Input device connected", "device", dev.path, "name", dev.name, "grab", e.cfg.Grab)
			err = e.serve(ctx, dev)
			_ = dev.Close()
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			e.logger.Warnw("Input device lost", "device", dev.path, "error", err, "retry", e.cfg.Reconnect.String())
		}

		t := time.NewTimer(e.cfg.Reconnect)
		select {
		case <-ctx.Done():
			t.Stop()
			return context.Cause(ctx)
		case <-t.C:
		}
	}
}

func (e *Evdev) serve(ctx context.Context, dev *device) error {
	raw := make(chan keyEvent, 64)
	done := make(chan struct{})
	defer close(done)
	errCh := make(chan error, 1)
	go func() { errCh <- dev.read(done, raw) }()

	cls := newClassifier(e.cfg)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if dl, ok := cls.deadline(); ok {
			timer.Reset(time.Until(dl))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case err := <-errCh:
			return err
		case ev := <-raw:
			for _, pe := range cls.key(ev) {
				e.publish(pe, ev.at)
			}
		case now := <-timerC:
			if pe, ok := cls.expire(now); ok {
				e.publish(pe, now)
			}
		}
		timer.Stop()
	}
}

func (e *Evdev) publish(ev mode.Event, at time.Time) {
	if !safeSend(e.out, Input{Kind: Press, Event: ev, At: at}) {
		e.logger.Warnw("Input event dropped, consumer is slow", "event", ev.String())
		return
	}
	e.logger.Debugw("Press classified", "event", ev.String())
}
