package mailbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

// WordSize — размер полезной нагрузки: одно знаковое 32-битное целое в нативном порядке байт.
const WordSize = 4

// DefaultDir — каталог POSIX shared memory в Linux; сегменты совместимы
// с multiprocessing.shared_memory из Python.
const DefaultDir = "/dev/shm"

var (
	ErrClosed      = errors.New("mailbox: closed")
	ErrInvalidName = errors.New("mailbox: invalid name")
	ErrTooSmall    = errors.New("mailbox: segment smaller than a word")
)

// Backend выбирает механизм разделяемой памяти.
type Backend string

const (
	BackendPOSIX Backend = "posix"
	BackendSysV  Backend = "sysv"
)

// ParseBackend разбирает значение из конфига; пустая строка — POSIX.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "posix", "shm":
		return BackendPOSIX, nil
	case "sysv", "ipc":
		return BackendSysV, nil
	}
	return "", fmt.Errorf("mailbox: unknown backend %q", s)
}

// segment — подключённый блок разделяемой памяти.
type segment interface {
	Bytes() []byte
	Detach() error
	Remove() error
}

// Mailbox — ячейка из одного слова в разделяемой памяти. Хранит только последнее
// записанное значение: очереди нет, непрочитанная запись может быть перезаписана.
type Mailbox struct {
	name  string
	owner bool
	seg   segment
	word  *int32

	mu     sync.RWMutex
	closed bool
}

type options struct {
	owner   bool
	dir     string
	backend Backend
}

type Option func(*options)

// WithOwner помечает процесс владельцем: при Close сегмент будет удалён.
// Владелец у каждого ящика ровно один: долгоживущий супервизор.
func WithOwner() Option { return func(o *options) { o.owner = true } }

// WithDir задаёт каталог POSIX-сегментов (тесты используют временный каталог).
func WithDir(dir string) Option { return func(o *options) { o.dir = dir } }

func WithBackend(b Backend) Option { return func(o *options) { o.backend = b } }

// Create подключается к ящику с именем name, создавая его при отсутствии.
// Существующий сегмент с тем же именем не является ошибкой.
func Create(name string, opts ...Option) (*Mailbox, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	o := options{dir: DefaultDir, backend: BackendPOSIX}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		seg segment
		err error
	)
	switch o.backend {
	case BackendSysV:
		seg, err = attachSysV(name, WordSize)
	case BackendPOSIX, "":
		seg, err = attachPOSIX(o.dir, name, WordSize)
	default:
		return nil, fmt.Errorf("mailbox: unknown backend %q", o.backend)
	}
	if err != nil {
		return nil, fmt.Errorf("mailbox %s: %w", name, err)
	}

	b := seg.Bytes()
	if len(b) < WordSize {
		_ = seg.Detach()
		return nil, fmt.Errorf("mailbox %s: %w (%d bytes)", name, ErrTooSmall, len(b))
	}
	// Отображение выровнено по странице, поэтому слово выровнено и доступ атомарен.
	return &Mailbox{
		name:  name,
		owner: o.owner,
		seg:   seg,
		word:  (*int32)(unsafe.Pointer(&b[0])),
	}, nil
}

func (m *Mailbox) Name() string { return m.name }

func (m *Mailbox) Owner() bool { return m.owner }

// Write перезаписывает значение ящика.
func (m *Mailbox) Write(v int32) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("%w: %s", ErrClosed, m.name)
	}
	atomic.StoreInt32(m.word, v)
	return nil
}

// Read возвращает текущее значение. После Close возвращает 0.
func (m *Mailbox) Read() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0
	}
	return atomic.LoadInt32(m.word)
}

// Swap записывает v и возвращает прежнее значение одной атомарной операцией.
// Используется получателем команд, чтобы сбросить прочитанный код в 0.
func (m *Mailbox) Swap(v int32) (int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, fmt.Errorf("%w: %s", ErrClosed, m.name)
	}
	return atomic.SwapInt32(m.word, v), nil
}

// Close отключает сегмент; владелец дополнительно удаляет его.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.word = nil

	err := m.seg.Detach()
	if m.owner {
		err = errors.Join(err, m.seg.Remove())
	}
	if err != nil {
		return fmt.Errorf("mailbox %s: close: %w", m.name, err)
	}
	return nil
}

// Set — набор ящиков процесса, открытых по имени.
type Set struct {
	mu    sync.Mutex
	boxes map[string]*Mailbox
	opts  []Option
}

// NewSet создаёт пустой набор; opts применяются ко всем открываемым ящикам.
func NewSet(opts ...Option) *Set {
	return &Set{boxes: make(map[string]*Mailbox), opts: opts}
}

// Ensure возвращает ящик name, подключаясь к нему при первом обращении.
func (s *Set) Ensure(name string) (*Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, ok := s.boxes[name]; ok {
		return mb, nil
	}
	mb, err := Create(name, s.opts...)
	if err != nil {
		return nil, err
	}
	s.boxes[name] = mb
	return mb, nil
}

// Close закрывает все ящики набора.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, mb := range s.boxes {
		if err := mb.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.boxes, name)
	}
	return errors.Join(errs...)
}
