package camera

import (
	"EyeWear/internal/config"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

var ErrNoImage = errors.New("camera produced no image")

// Camera делает один снимок и возвращает путь к JPEG-файлу.
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// New выбирает бэкенд по cfg.Backend: rpicam или screen.
func New(cfg config.CameraConfig, logger *zap.SugaredLogger) (Camera, error) {
	switch cfg.Backend {
	case "", "rpicam":
		return NewRpicam(cfg, logger), nil
	case "screen":
		return NewScreen(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.Backend)
	}
}

// Filename — имя файла снимка с миллисекундами, чтобы кадры одной секунды не совпадали.
func Filename(at time.Time) string {
	return "image_" + at.Format("20060102_150405.000") + ".jpg"
}

func outputPath(dir string, at time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}
	return filepath.Join(dir, Filename(at)), nil
}

func checkOutput(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoImage
		}
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNoImage)
	}
	return nil
}
