package registry

import (
	"EyeWear/internal/ipc/signals"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRoot         = "/tmp/.pid"
	DefaultPollInterval = time.Second
	markerExt           = ".pid"
)

var (
	ErrAlreadyRegistered = errors.New("registry: name already registered")
	ErrNotRegistered     = errors.New("registry: name not registered")
	ErrInvalidName       = errors.New("registry: invalid name")
)

// Registry сопоставляет логическое имя процесса с его pid через маркер-файлы
// <root>/<name>.pid. На одно имя допускается ровно один живой процесс.
type Registry struct {
	root     string
	interval time.Duration
	logger   *zap.SugaredLogger

	// alive подменяется в тестах
	alive func(pid int) bool
}

// Handle — запись реестра, принадлежащая текущему процессу.
type Handle struct {
	Name string
	PID  int
	Path string

	once sync.Once
	err  error
}

func New(root string, interval time.Duration, logger *zap.SugaredLogger) *Registry {
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	// опрашивать чаще заданного интервала нельзя
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{root: root, interval: interval, logger: logger, alive: signals.Alive}
}

func (r *Registry) Root() string { return r.root }

func (r *Registry) Interval() time.Duration { return r.interval }

// Path возвращает путь маркер-файла для имени.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.root, name+markerExt)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Register создаёт запись для текущего процесса. Если маркер уже существует,
// возвращается ErrAlreadyRegistered, а существующая запись не трогается.
func (r *Registry) Register(name string) (*Handle, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create root %s: %w", r.root, err)
	}

	path := r.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrAlreadyRegistered, name, path)
		}
		return nil, fmt.Errorf("registry: create %s: %w", path, err)
	}

	pid := os.Getpid()
	if _, werr := f.WriteString(strconv.Itoa(pid)); werr != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("registry: write %s: %w", path, werr)
	}
	if cerr := f.Close(); cerr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("registry: close %s: %w", path, cerr)
	}

	r.logger.Infow("Process registered", "name", name, "pid", pid, "path", path)
	return &Handle{Name: name, PID: pid, Path: path}, nil
}

// Release удаляет маркер. Повторные вызовы возвращают результат первого.
// Чужой маркер (pid не наш) не удаляется.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		pid, err := readPID(h.Path)
		if err == nil && pid != h.PID {
			h.err = fmt.Errorf("registry: marker %s now belongs to pid %d", h.Path, pid)
			return
		}
		if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.err = fmt.Errorf("registry: remove %s: %w", h.Path, err)
		}
	})
	return h.err
}

func readPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("registry: invalid pid in %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("registry: invalid pid %d in %s", pid, path)
	}
	return pid, nil
}

// TryLookup — одна попытка найти pid. Маркер с мёртвым pid считается отсутствующим.
func (r *Registry) TryLookup(name string) (int, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	path := r.Path(name)
	pid, err := readPID(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		// маркер мог быть пойман посреди записи; трактуем как промах
		return 0, fmt.Errorf("%w: %s: %v", ErrNotRegistered, name, err)
	}
	if !r.alive(pid) {
		return 0, fmt.Errorf("%w: %s (stale pid %d)", ErrNotRegistered, name, pid)
	}
	return pid, nil
}

// Lookup блокируется, пока имя не появится в реестре, опрашивая не чаще interval.
// Таймаута нет: возврат только при успехе или отмене ctx.
func (r *Registry) Lookup(ctx context.Context, name string) (int, error) {
	pid, err := r.TryLookup(name)
	if err == nil {
		return pid, nil
	}
	if !errors.Is(err, ErrNotRegistered) {
		return 0, err
	}

	t := time.NewTicker(r.interval)
	defer t.Stop()
	misses := 1
	r.logger.Infow("Waiting for process to register", "name", name, "path", r.Path(name), "reason", err)
	for {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("registry: lookup %s: %w", name, context.Cause(ctx))
		case <-t.C:
		}
		pid, err = r.TryLookup(name)
		if err == nil {
			if misses > 1 {
				r.logger.Infow("Process registered after wait", "name", name, "pid", pid, "misses", misses)
			}
			return pid, nil
		}
		if !errors.Is(err, ErrNotRegistered) {
			return 0, err
		}
		misses++
		r.logger.Debugw("Still waiting for process", "name", name, "misses", misses)
	}
}

// Sweep удаляет маркеры процессов, которых уже нет. Вызывается супервизором
// до запуска ролей. Возвращает имена удалённых записей.
func (r *Registry) Sweep(names ...string) ([]string, error) {
	if len(names) == 0 {
		entries, err := os.ReadDir(r.root)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("registry: read %s: %w", r.root, err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != markerExt {
				continue
			}
			names = append(names, strings.TrimSuffix(e.Name(), markerExt))
		}
	}

	var removed []string
	var errs []error
	for _, name := range names {
		if validName(name) != nil {
			continue
		}
		path := r.Path(name)
		pid, err := readPID(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err == nil && r.alive(pid) {
			continue
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("registry: remove stale %s: %w", path, rmErr))
			continue
		}
		r.logger.Warnw("Removed stale registry entry", "name", name, "pid", pid)
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}
