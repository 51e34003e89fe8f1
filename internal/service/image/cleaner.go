package image

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cleaner удаляет старые снимки по TTL: снимки, которые не удалось
// распознать, не должны копиться на карте памяти.
type Cleaner struct {
	logger *zap.SugaredLogger
	dir    string
	ttl    time.Duration
}

func NewCleaner(dir string, ttl time.Duration, logger *zap.SugaredLogger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cleaner{logger: logger, dir: dir, ttl: ttl}
}

// Run чистит каталог каждые every до отмены ctx.
func (c *Cleaner) Run(ctx context.Context, every time.Duration) {
	if c.ttl <= 0 || c.dir == "" {
		c.logger.Infow("Image cleaner disabled", "dir", c.dir, "ttl", c.ttl.String())
		return
	}
	if every <= 0 {
		every = c.ttl
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.Clean(now)
		}
	}
}

// Clean удаляет JPEG-файлы старше ttl относительно now и возвращает их число.
func (c *Cleaner) Clean(now time.Time) int {
	if c.ttl <= 0 || c.dir == "" {
		return 0
	}
	deadline := now.Add(-c.ttl)
	exts := []string{".jpg", ".jpeg"}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0
		}
		c.logger.Warnw("Не удалось прочитать директорию для очистки", "dir", c.dir, "error", err)
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if slices.IndexFunc(exts, func(ext string) bool { return strings.HasSuffix(lower, ext) }) == -1 {
			continue
		}
		fi, statErr := e.Info()
		if statErr != nil {
			c.logger.Warnw("Не удалось получить информацию о файле при очистке", "name", name, "error", statErr)
			continue
		}
		if fi.ModTime().Before(deadline) {
			full := filepath.Join(c.dir, name)
			if err := os.Remove(full); err != nil {
				c.logger.Warnw("Не удалось удалить старый файл", "path", full, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		c.logger.Infow("Old images removed", "dir", c.dir, "removed", removed)
	}
	return removed
}
