package camera

import (
	"EyeWear/internal/config"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"time"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

// Screen снимает экран вместо камеры: нужно для отладки на десктопе.
type Screen struct {
	cfg    config.CameraConfig
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewScreen(cfg config.CameraConfig, logger *zap.SugaredLogger) *Screen {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Screen{cfg: cfg, logger: logger, now: time.Now}
}

func (s *Screen) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return "", fmt.Errorf("no active displays: %w", ErrNoImage)
	}

	// Объединённые границы всех мониторов
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}

	canvas := image.NewRGBA(union)
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		img, err := screenshot.CaptureRect(b)
		if err != nil {
			s.logger.Errorw("Failed to capture display", "index", i, "error", err)
			continue
		}
		dstPoint := image.Pt(b.Min.X-union.Min.X, b.Min.Y-union.Min.Y)
		draw.Draw(canvas, image.Rectangle{Min: dstPoint, Max: dstPoint.Add(b.Size())}, img, image.Point{}, draw.Src)
	}

	out, err := outputPath(s.cfg.ImagesDir, s.now())
	if err != nil {
		return "", err
	}
	if err := writeJPEG(out, canvas, s.cfg.Quality); err != nil {
		return "", err
	}
	s.logger.Infow("Screen captured", "path", out, "displays", n)
	return out, nil
}

func writeJPEG(path string, img image.Image, quality int) (err error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
}
