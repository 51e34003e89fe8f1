package rtc

import (
	"EyeWear/internal/config"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"go.uber.org/zap"
)

var annexB = []byte{0, 0, 0, 1}

// SampleWriter — видеодорожка звонка (webrtc.TrackLocalStaticSample).
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// Source пишет видео в дорожку до отмены ctx или конца потока.
type Source interface {
	Stream(ctx context.Context, w SampleWriter) error
}

// Rpicam снимает H.264 через rpicam-vid в stdout.
type Rpicam struct {
	logger  *zap.SugaredLogger
	command string
	width   int
	height  int
	fps     int
	bitrate int
}

func NewRpicam(cfg config.CallConfig, logger *zap.SugaredLogger) *Rpicam {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	command := cfg.VideoCommand
	if command == "" {
		command = "rpicam-vid"
	}
	fps := cfg.VideoFPS
	if fps <= 0 {
		fps = 30
	}
	return &Rpicam{
		logger:  logger,
		command: command,
		width:   cfg.VideoWidth,
		height:  cfg.VideoHeight,
		fps:     fps,
		bitrate: cfg.VideoBitrate,
	}
}

// VideoArgs — аргументы rpicam-vid: бесконечный поток H.264 с SPS/PPS перед
// каждым ключевым кадром.
func VideoArgs(width, height, fps, bitrate int) []string {
	args := []string{"-t", "0", "--codec", "h264", "--inline", "--nopreview", "--framerate", strconv.Itoa(fps)}
	if width > 0 && height > 0 {
		args = append(args, "--width", strconv.Itoa(width), "--height", strconv.Itoa(height))
	}
	if bitrate > 0 {
		args = append(args, "--bitrate", strconv.Itoa(bitrate))
	}
	return append(args, "-o", "-")
}

func (r *Rpicam) Stream(ctx context.Context, w SampleWriter) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.command, VideoArgs(r.width, r.height, r.fps, r.bitrate)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.command, err)
	}
	r.logger.Infow("Video stream started", "command", r.command, "pid", cmd.Process.Pid, "fps", r.fps)

	pumpErr := Pump(out, w, time.Second/time.Duration(r.fps))
	// при ошибке записи процесс съёмки больше не нужен
	cancel()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if pumpErr != nil {
		return pumpErr
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w: %s", r.command, waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Pump читает поток H.264 Annex-B и пишет по сэмплу на кадр: SPS, PPS и SEI
// уходят вместе со следующим срезом.
func Pump(r io.Reader, w SampleWriter, frame time.Duration) error {
	h, err := h264reader.NewReader(r)
	if err != nil {
		return err
	}
	var buf []byte
	for {
		nal, err := h.NextNAL()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		buf = append(buf, annexB...)
		buf = append(buf, nal.Data...)
		if nal.UnitType != h264reader.NalUnitTypeCodedSliceIdr && nal.UnitType != h264reader.NalUnitTypeCodedSliceNonIdr {
			continue
		}
		if err := w.WriteSample(media.Sample{Data: buf, Duration: frame}); err != nil {
			return err
		}
		buf = nil
	}
}
