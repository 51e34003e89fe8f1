package audio

import (
	"EyeWear/internal/mode"
	"EyeWear/internal/service/audio/player"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Sound — короткий звуковой сигнал из каталога ассетов.
type Sound string

const (
	CallStart        Sound = "call_client.wav"
	CallEnd          Sound = "hang_up.wav"
	Muted            Sound = "muted.wav"
	Unmuted          Sound = "unmuted.wav"
	Zero             Sound = "zero.wav"
	One              Sound = "one.wav"
	Two              Sound = "two.wav"
	Three            Sound = "three.wav"
	Four             Sound = "four.wav"
	Five             Sound = "five.wav"
	Many             Sound = "many.wav"
	PhotosProcessing Sound = "photos_are_processing.wav"
	RunOcr           Sound = "run_ocr_client.wav"
	TakeNewPhoto     Sound = "take_new_photo_and_add_to_ocr.wav"
	TryAgainLater    Sound = "please_try_again_later.wav"
	StopOcr          Sound = "stop_ocr.wav"
)

var counts = []Sound{Zero, One, Two, Three, Four, Five}

// CountSound — озвучка числа: 0..5 по отдельности, больше — «много».
func CountSound(n int) Sound {
	if n < 0 {
		n = 0
	}
	if n < len(counts) {
		return counts[n]
	}
	return Many
}

// SoundFor — сигнал, подтверждающий действие. muted — состояние микрофона
// после переключения.
func SoundFor(a mode.Action, muted bool) (Sound, bool) {
	switch a {
	case mode.StartCall:
		return CallStart, true
	case mode.HangUp:
		return CallEnd, true
	case mode.ToggleMute:
		if muted {
			return Muted, true
		}
		return Unmuted, true
	case mode.StartOcr:
		return RunOcr, true
	case mode.TakeNewPhoto:
		return TakeNewPhoto, true
	case mode.StopOcr, mode.ForceStopOcr:
		return StopOcr, true
	default:
		return "", false
	}
}

// Feedback проигрывает сигналы последовательно в своей горутине, чтобы
// не задерживать обработку нажатий. Реализует mode.Cues.
type Feedback struct {
	logger *zap.SugaredLogger
	dir    string
	ply    player.Player
	queue  chan []Sound

	mu    sync.Mutex
	muted bool
}

// ResolveDir ищет каталог ассетов рядом с бинарём, затем от рабочего каталога.
func ResolveDir(dir string) string {
	if strings.TrimSpace(dir) == "" {
		dir = "assets"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	if exe, err := os.Executable(); err == nil {
		cand := filepath.Join(filepath.Dir(exe), dir)
		if st, statErr := os.Stat(cand); statErr == nil && st.IsDir() {
			return cand
		}
	}
	return filepath.FromSlash(dir)
}

func NewFeedback(dir string, ply player.Player, logger *zap.SugaredLogger) *Feedback {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Feedback{
		logger: logger,
		dir:    ResolveDir(dir),
		ply:    ply,
		queue:  make(chan []Sound, 16),
	}
}

// Run проигрывает очередь сигналов до отмены ctx.
func (f *Feedback) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case seq := <-f.queue:
			for _, s := range seq {
				if err := f.play(ctx, s); err != nil && ctx.Err() != nil {
					return context.Cause(ctx)
				}
			}
		}
	}
}

func (f *Feedback) play(ctx context.Context, s Sound) error {
	path := filepath.Join(f.dir, string(s))
	file, err := os.Open(path)
	if err != nil {
		f.logger.Warnw("Не удалось открыть звуковой файл", "path", path, "error", err)
		return err
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if err := f.ply.Play(ctx, ext, file); err != nil {
		f.logger.Warnw("Не удалось воспроизвести звук", "path", path, "error", err)
		return err
	}
	return nil
}

// Enqueue ставит последовательность сигналов в очередь. При переполнении
// сигналы отбрасываются.
func (f *Feedback) Enqueue(seq ...Sound) {
	if len(seq) == 0 {
		return
	}
	select {
	case f.queue <- seq:
	default:
		f.logger.Warnw("Feedback queue full, sounds dropped", "sounds", seq)
	}
}

// Cue подтверждает действие звуком. Состояние микрофона ведётся здесь же:
// начало и конец звонка его сбрасывают.
func (f *Feedback) Cue(_ context.Context, a mode.Action) {
	f.mu.Lock()
	switch a {
	case mode.StartCall, mode.HangUp:
		f.muted = false
	case mode.ToggleMute:
		f.muted = !f.muted
	}
	muted := f.muted
	f.mu.Unlock()

	if s, ok := SoundFor(a, muted); ok {
		f.Enqueue(s)
	}
}

// Count озвучивает длину очереди OCR.
func (f *Feedback) Count(_ context.Context, n int) {
	f.Enqueue(CountSound(n))
}

// Images озвучивает число снимков в обработке.
func (f *Feedback) Images(_ context.Context, n int) {
	f.Enqueue(CountSound(n), PhotosProcessing)
}
