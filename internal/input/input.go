package input

import (
	"EyeWear/internal/mode"
	"context"
	"fmt"
	"time"
)

// Kind различает классифицированное нажатие и готовую команду.
type Kind int

const (
	// Press — нажатие, действие определит автомат режимов.
	Press Kind = iota + 1
	// Command — действие задано напрямую (эмулятор, строки из stdin).
	Command
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Command:
		return "command"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Input — событие источника ввода.
type Input struct {
	Kind   Kind
	Event  mode.Event
	Action mode.Action
	At     time.Time
}

// Source — источник событий ввода. Events закрывается по завершении Run.
type Source interface {
	Run(ctx context.Context) error
	Events() <-chan Input
}

// Config — параметры аппаратного источника.
type Config struct {
	// Путь к устройству (/dev/input/eventN). Пусто — автопоиск.
	Device string
	// Подстроки имён устройств, которые пропускаются при поиске.
	Exclude []string
	// Пауза между попытками переподключения.
	Reconnect time.Duration
	// Эксклюзивный захват устройства (EVIOCGRAB).
	Grab bool
	// Окно двойного нажатия и порог долгого нажатия для кнопок с замером времени.
	DoubleTapWindow time.Duration
	LongPress       time.Duration
}

const (
	DefaultReconnect       = 10 * time.Second
	DefaultDoubleTapWindow = 500 * time.Millisecond
	DefaultLongPress       = time.Second
)

func (c Config) withDefaults() Config {
	if c.Reconnect <= 0 {
		c.Reconnect = DefaultReconnect
	}
	if c.DoubleTapWindow <= 0 {
		c.DoubleTapWindow = DefaultDoubleTapWindow
	}
	if c.LongPress <= 0 {
		c.LongPress = DefaultLongPress
	}
	if c.Exclude == nil {
		c.Exclude = []string{"hdmi"}
	}
	return c
}

func safeSend(out chan<- Input, in Input) bool {
	select {
	case out <- in:
		return true
	default:
		// при переполнении событие теряется, источник не блокируется
		return false
	}
}
