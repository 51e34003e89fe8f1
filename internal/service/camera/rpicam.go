package camera

import (
	"EyeWear/internal/config"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Rpicam снимает кадр внешней утилитой rpicam-still.
type Rpicam struct {
	cfg    config.CameraConfig
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRpicam(cfg config.CameraConfig, logger *zap.SugaredLogger) *Rpicam {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Command == "" {
		cfg.Command = "rpicam-still"
	}
	return &Rpicam{cfg: cfg, logger: logger, now: time.Now}
}

// Args — аргументы rpicam-still для одного кадра.
func Args(out string, quality int, timeout time.Duration) []string {
	return []string{
		"-o", out,
		"-q", strconv.Itoa(quality),
		"--autofocus-mode", "continuous",
		"--timeout", strconv.FormatInt(timeout.Milliseconds(), 10),
		"--nopreview",
	}
}

func (r *Rpicam) Capture(ctx context.Context) (string, error) {
	out, err := outputPath(r.cfg.ImagesDir, r.now())
	if err != nil {
		return "", err
	}

	// запас на запуск процесса сверх таймаута самой камеры
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout+10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Command, Args(out, r.cfg.Quality, r.cfg.Timeout)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("%s: %w: %s", r.cfg.Command, err, strings.TrimSpace(stderr.String()))
	}
	if err := checkOutput(out); err != nil {
		return "", err
	}
	r.logger.Infow("Image captured", "path", out, "elapsed", time.Since(start).String())
	return out, nil
}
