package protocol

import (
	"EyeWear/internal/ipc/signals"
	"fmt"
)

// Code — содержимое почтового ящика: небольшое целое, смысл зависит от канала.
type Code int32

// None — «ничего не ожидает обработки». Ящики создаются обнулёнными.
const None Code = 0

// Коды канала call_signal (совпадают с call_client).
const (
	StartCall  Code = 1
	EndCall    Code = 2
	ToggleMute Code = 3
)

// Коды канала ocr_signal.
const (
	StartOcr   Code = 1
	StopOcr    Code = 2
	PauseOcr   Code = 3
	NewPicture Code = 4
	StopOcrNow Code = 5
)

// Имена почтовых ящиков.
const (
	CallSignal     = "call_signal"
	OcrSignal      = "ocr_signal"
	OcrQueueCount  = "ocr_queue_count"
	OcrQueueImages = "ocr_queue_images"
)

// Имена ролей в реестре процессов.
const (
	RoleSupervisor = "eyewear"
	RoleInput      = "earbud_input"
	RoleCall       = "call_client"
	RoleOcr        = "ocr_process"
)

// Route описывает, куда уходит запись в ящик: процесс-получатель и номер сигнала.
type Route struct {
	Mailbox string
	Target  string
	Channel signals.Channel
}

func (r Route) String() string {
	return fmt.Sprintf("%s->%s/%s", r.Mailbox, r.Target, r.Channel)
}

// Фиксированные маршруты системы. У каждого ящика один читатель.
var (
	CallRoute        = Route{Mailbox: CallSignal, Target: RoleCall, Channel: signals.Primary}
	OcrRoute         = Route{Mailbox: OcrSignal, Target: RoleOcr, Channel: signals.Primary}
	QueueCountRoute  = Route{Mailbox: OcrQueueCount, Target: RoleInput, Channel: signals.Primary}
	QueueImagesRoute = Route{Mailbox: OcrQueueImages, Target: RoleInput, Channel: signals.Secondary}
)

// Routes возвращает все фиксированные маршруты.
func Routes() []Route {
	return []Route{CallRoute, OcrRoute, QueueCountRoute, QueueImagesRoute}
}

// Mailboxes — имена всех фиксированных ящиков (их создаёт и удаляет супервизор).
func Mailboxes() []string {
	rs := Routes()
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.Mailbox)
	}
	return names
}

// RouteFor ищет маршрут по имени ящика.
func RouteFor(mailbox string) (Route, bool) {
	for _, r := range Routes() {
		if r.Mailbox == mailbox {
			return r, true
		}
	}
	return Route{}, false
}

// CallCodeName и OcrCodeName нужны только для логов.
func CallCodeName(c Code) string {
	switch c {
	case None:
		return "none"
	case StartCall:
		return "start_call"
	case EndCall:
		return "end_call"
	case ToggleMute:
		return "toggle_mute"
	default:
		return fmt.Sprintf("unknown(%d)", int32(c))
	}
}

func OcrCodeName(c Code) string {
	switch c {
	case None:
		return "none"
	case StartOcr:
		return "start_ocr"
	case StopOcr:
		return "stop_ocr"
	case PauseOcr:
		return "pause_ocr"
	case NewPicture:
		return "new_picture"
	case StopOcrNow:
		return "stop_ocr_now"
	default:
		return fmt.Sprintf("unknown(%d)", int32(c))
	}
}
