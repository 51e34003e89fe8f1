package input

import (
	"EyeWear/internal/mode"
	"time"
)

// Timing классифицирует нажатия одной кнопки по длительности и интервалу:
// удержание >= long — LongPress; второе короткое нажатие, начатое раньше чем через
// window после первого отпускания, — DoubleTap; иначе одиночное короткое
// нажатие становится SingleTap, когда окно истекает.
//
// Не потокобезопасен: вызывается только из цикла источника.
type Timing struct {
	long   time.Duration
	window time.Duration

	pressed bool
	downAt  time.Time

	pending   bool
	pendingAt time.Time
}

func NewTiming(long, window time.Duration) *Timing {
	if long <= 0 {
		long = DefaultLongPress
	}
	if window <= 0 {
		window = DefaultDoubleTapWindow
	}
	return &Timing{long: long, window: window}
}

// Down отмечает нажатие. Если ожидающее одиночное уже просрочено, оно
// возвращается первым.
func (t *Timing) Down(at time.Time) (mode.Event, bool) {
	ev, ok := t.Expire(at)
	t.pressed = true
	t.downAt = at
	return ev, ok
}

// Up отмечает отпускание и возвращает событие, если оно уже определено.
func (t *Timing) Up(at time.Time) (mode.Event, bool) {
	if !t.pressed {
		return 0, false
	}
	t.pressed = false
	held := at.Sub(t.downAt)

	if held >= t.long {
		// долгое нажатие поглощает ожидающее одиночное
		t.pending = false
		return mode.LongPress, true
	}
	if t.pending && t.downAt.Sub(t.pendingAt) < t.window {
		t.pending = false
		return mode.DoubleTap, true
	}
	t.pending = true
	t.pendingAt = at
	return 0, false
}

// Expire отдаёт ожидающее одиночное нажатие, если окно истекло к now.
func (t *Timing) Expire(now time.Time) (mode.Event, bool) {
	if !t.pending || now.Sub(t.pendingAt) < t.window {
		return 0, false
	}
	t.pending = false
	return mode.SingleTap, true
}

// Deadline — момент, когда ожидающее одиночное станет SingleTap.
func (t *Timing) Deadline() (time.Time, bool) {
	if !t.pending {
		return time.Time{}, false
	}
	return t.pendingAt.Add(t.window), true
}
