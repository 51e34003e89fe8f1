package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

var ErrUnsupportedFormat = errors.New("player: unsupported format, use mp3 or wav")

// Player воспроизводит аудио потоком в зависимости от формата.
// Play блокирует до конца воспроизведения или отмены ctx.
type Player interface {
	Play(ctx context.Context, format string, r io.ReadCloser) error
}

// Default реализует Player поверх beep/speaker. Динамик инициализируется
// один раз частотой первого файла, остальные файлы пересэмплируются.
// Воспроизведения выполняются по одному.
type Default struct {
	volumeDB float64

	mu     sync.Mutex
	inited bool
	rate   beep.SampleRate

	ctrlMu sync.Mutex
	ctrl   *beep.Ctrl
	paused bool
}

// New создаёт плеер без изменения громкости (0 dB).
func New() *Default { return &Default{} }

// NewWithVolume создаёт плеер с громкостью в dB (отрицательные — тише).
func NewWithVolume(db float64) *Default { return &Default{volumeDB: db} }

// Decode разбирает поток формата wav или mp3.
func Decode(format string, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "wav":
		return wav.Decode(r)
	case "mp3":
		return mp3.Decode(r)
	default:
		_ = r.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (d *Default) init(rate beep.SampleRate) error {
	if d.inited {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return err
	}
	d.inited = true
	d.rate = rate
	return nil
}

func (d *Default) Play(ctx context.Context, format string, r io.ReadCloser) error {
	streamer, f, err := Decode(format, r)
	if err != nil {
		return err
	}
	defer streamer.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if err := d.init(f.SampleRate); err != nil {
		return err
	}

	var s beep.Streamer = streamer
	if f.SampleRate != d.rate {
		s = beep.Resample(4, f.SampleRate, d.rate, s)
	}
	vol := &effects.Volume{Streamer: s, Base: 2, Volume: d.volumeDB}

	d.ctrlMu.Lock()
	ctrl := &beep.Ctrl{Streamer: vol, Paused: d.paused}
	d.ctrl = ctrl
	d.ctrlMu.Unlock()
	defer func() {
		d.ctrlMu.Lock()
		d.ctrl = nil
		d.ctrlMu.Unlock()
	}()

	done := make(chan struct{})
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() { close(done) })))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return context.Cause(ctx)
	}
}

// SetPaused ставит воспроизведение на паузу или снимает с неё. Состояние
// сохраняется и для следующих файлов.
func (d *Default) SetPaused(p bool) {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()
	d.paused = p
	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	d.ctrl.Paused = p
	speaker.Unlock()
}

// Paused сообщает, стоит ли плеер на паузе.
func (d *Default) Paused() bool {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()
	return d.paused
}
