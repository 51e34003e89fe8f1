package mode

import (
	"EyeWear/internal/ipc/protocol"
	"errors"
	"fmt"
	"strings"
)

// Mode — режим работы устройства. При старте всегда Idle.
type Mode int32

const (
	Idle Mode = iota
	Call
	Ocr
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Call:
		return "call"
	case Ocr:
		return "ocr"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// Event — классифицированное нажатие.
type Event int

const (
	SingleTap Event = iota + 1
	DoubleTap
	LongPress
)

func (e Event) String() string {
	switch e {
	case SingleTap:
		return "single_tap"
	case DoubleTap:
		return "double_tap"
	case LongPress:
		return "long_press"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Action — что делать с нажатием. Ignore — полноценный вариант, а не заглушка.
type Action int

const (
	Ignore Action = iota
	StartCall
	ToggleMute
	HangUp
	StartOcr
	PauseOcr
	TakeNewPhoto
	StopOcr
	// ForceStopOcr отправляется не пользователем, а по отчёту о пустой очереди OCR.
	ForceStopOcr
)

func (a Action) String() string {
	switch a {
	case Ignore:
		return "ignore"
	case StartCall:
		return "start_call"
	case ToggleMute:
		return "toggle_mute"
	case HangUp:
		return "hang_up"
	case StartOcr:
		return "start_ocr"
	case PauseOcr:
		return "pause_ocr"
	case TakeNewPhoto:
		return "take_new_photo"
	case StopOcr:
		return "stop_ocr"
	case ForceStopOcr:
		return "stop_ocr_now"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Effect — последствия действия: смена режима и запись кода в один ящик.
type Effect struct {
	Next    Mode
	Changes bool
	Route   protocol.Route
	Code    protocol.Code
	Writes  bool
}

// Effect описывает действие явно, без таблиц по строкам.
func (a Action) Effect() Effect {
	switch a {
	case StartCall:
		return Effect{Next: Call, Changes: true, Route: protocol.CallRoute, Code: protocol.StartCall, Writes: true}
	case ToggleMute:
		return Effect{Route: protocol.CallRoute, Code: protocol.ToggleMute, Writes: true}
	case HangUp:
		return Effect{Next: Idle, Changes: true, Route: protocol.CallRoute, Code: protocol.EndCall, Writes: true}
	case StartOcr:
		return Effect{Next: Ocr, Changes: true, Route: protocol.OcrRoute, Code: protocol.StartOcr, Writes: true}
	case PauseOcr:
		return Effect{Route: protocol.OcrRoute, Code: protocol.PauseOcr, Writes: true}
	case TakeNewPhoto:
		return Effect{Route: protocol.OcrRoute, Code: protocol.NewPicture, Writes: true}
	case StopOcr:
		return Effect{Next: Idle, Changes: true, Route: protocol.OcrRoute, Code: protocol.StopOcr, Writes: true}
	case ForceStopOcr:
		return Effect{Next: Idle, Changes: true, Route: protocol.OcrRoute, Code: protocol.StopOcrNow, Writes: true}
	default:
		return Effect{}
	}
}

// Resolve — таблица переходов (режим × нажатие → действие). Тотальна:
// любая пара без записи даёт Ignore.
//
//	mode | SingleTap   | DoubleTap      | LongPress
//	Idle | ignore      | start_ocr      | start_call
//	Call | toggle_mute | hang_up        | ignore
//	Ocr  | pause_ocr   | take_new_photo | stop_ocr
func Resolve(m Mode, e Event) Action {
	switch m {
	case Idle:
		switch e {
		case DoubleTap:
			return StartOcr
		case LongPress:
			return StartCall
		}
	case Call:
		switch e {
		case SingleTap:
			return ToggleMute
		case DoubleTap:
			return HangUp
		}
	case Ocr:
		switch e {
		case SingleTap:
			return PauseOcr
		case DoubleTap:
			return TakeNewPhoto
		case LongPress:
			return StopOcr
		}
	}
	return Ignore
}

var ErrUnknownCommand = errors.New("mode: unknown command")

// Commands — имена действий для эмулятора в порядке подсказки.
var Commands = []struct {
	Name   string
	Action Action
}{
	{"cc", StartCall},
	{"roc", StartOcr},
	{"h", HangUp},
	{"m", ToggleMute},
	{"tn", TakeNewPhoto},
	{"so", StopOcr},
	{"po", PauseOcr},
}

// ParseCommand переводит имя команды эмулятора в действие.
func ParseCommand(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Commands {
		if c.Name == s {
			return c.Action, nil
		}
	}
	return Ignore, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// CommandHelp — строка подсказки вида "cc, roc, h, m, tn, so, po".
func CommandHelp() string {
	names := make([]string, 0, len(Commands))
	for _, c := range Commands {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
