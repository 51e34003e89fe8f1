package mode

import (
	"EyeWear/internal/ipc/protocol"
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sender доставляет код в ящик маршрута (bus.Sender).
type Sender interface {
	Send(ctx context.Context, route protocol.Route, code protocol.Code) error
}

// Cues — звуковая обратная связь. Необязательна.
type Cues interface {
	Cue(ctx context.Context, a Action)
	Count(ctx context.Context, n int)
}

// Machine — автомат режимов. Режим — единственное изменяемое состояние,
// меняется только действиями. Нажатия и отчёты OCR могут приходить из разных
// горутин, поэтому переходы делаются через CompareAndSwap.
type Machine struct {
	mode   atomic.Int32
	sender Sender
	cues   Cues
	logger *zap.SugaredLogger
}

func NewMachine(sender Sender, cues Cues, logger *zap.SugaredLogger) *Machine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Machine{sender: sender, cues: cues, logger: logger}
	m.mode.Store(int32(Idle))
	return m
}

// Mode возвращает текущий режим.
func (m *Machine) Mode() Mode { return Mode(m.mode.Load()) }

func (m *Machine) transition(from, to Mode) bool {
	return m.mode.CompareAndSwap(int32(from), int32(to))
}

// Dispatch разрешает нажатие по таблице и выполняет действие.
func (m *Machine) Dispatch(ctx context.Context, e Event) Action {
	for {
		cur := m.Mode()
		a := Resolve(cur, e)
		if a == Ignore {
			m.logger.Debugw("Press ignored", "mode", cur.String(), "event", e.String())
			return Ignore
		}
		eff := a.Effect()
		if eff.Changes && !m.transition(cur, eff.Next) {
			// режим поменял параллельный отчёт OCR, разрешаем заново
			continue
		}
		m.logger.Infow("Press dispatched", "mode", cur.String(), "event", e.String(), "action", a.String(), "next", m.Mode().String())
		m.emit(ctx, a, eff)
		return a
	}
}

// Perform выполняет действие напрямую, минуя классификацию (эмулятор).
func (m *Machine) Perform(ctx context.Context, a Action) error {
	if a == Ignore {
		return nil
	}
	eff := a.Effect()
	prev := m.Mode()
	if eff.Changes {
		m.mode.Store(int32(eff.Next))
	}
	m.logger.Infow("Action performed", "mode", prev.String(), "action", a.String(), "next", m.Mode().String())
	return m.emit(ctx, a, eff)
}

func (m *Machine) emit(ctx context.Context, a Action, eff Effect) error {
	if m.cues != nil {
		m.cues.Cue(ctx, a)
	}
	if !eff.Writes || m.sender == nil {
		return nil
	}
	if err := m.sender.Send(ctx, eff.Route, eff.Code); err != nil {
		m.logger.Errorw("Failed to send action", "action", a.String(), "route", eff.Route.String(), "error", err)
		return err
	}
	return nil
}

// ReportQueueDepth обрабатывает отчёт процесса OCR о длине очереди.
// Пустая очередь в режиме Ocr принудительно возвращает Idle и отправляет
// StopOcrNow независимо от параллельных нажатий. Возвращает true, если был
// выполнен принудительный останов.
func (m *Machine) ReportQueueDepth(ctx context.Context, n int) bool {
	if m.cues != nil {
		m.cues.Count(ctx, n)
	}
	if n != 0 {
		return false
	}
	if !m.transition(Ocr, Idle) {
		return false
	}
	m.logger.Infow("OCR queue drained, forcing stop", "mode", Ocr.String(), "next", Idle.String())
	_ = m.emit(ctx, ForceStopOcr, ForceStopOcr.Effect())
	return true
}
