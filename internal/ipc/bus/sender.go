package bus

import (
	"EyeWear/internal/ipc/mailbox"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/ipc/signals"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Locator находит pid процесса по имени роли (registry.Registry).
type Locator interface {
	Lookup(ctx context.Context, name string) (int, error)
}

// Mailboxes открывает ящик по имени (mailbox.Set).
type Mailboxes interface {
	Ensure(name string) (*mailbox.Mailbox, error)
}

// Sender пишет код в ящик маршрута и будит процесс-получатель.
// Доставка «выстрелил и забыл»: подтверждений нет, пропавший получатель
// или отказ в правах логируются и отбрасываются.
type Sender struct {
	locator   Locator
	mailboxes Mailboxes
	logger    *zap.SugaredLogger

	raise   func(pid int, ch signals.Channel) error
	dropped atomic.Int64
}

func NewSender(locator Locator, mailboxes Mailboxes, logger *zap.SugaredLogger) *Sender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sender{locator: locator, mailboxes: mailboxes, logger: logger, raise: signals.Raise}
}

// Send записывает code в ящик маршрута, дожидается регистрации получателя и
// отправляет ему уведомление. Возвращает ошибку только если запись в ящик
// невозможна или ожидание прервано через ctx.
func (s *Sender) Send(ctx context.Context, route protocol.Route, code protocol.Code) error {
	mb, err := s.mailboxes.Ensure(route.Mailbox)
	if err != nil {
		return fmt.Errorf("bus: send %s: %w", route, err)
	}
	if err := mb.Write(int32(code)); err != nil {
		return fmt.Errorf("bus: send %s: %w", route, err)
	}

	pid, err := s.locator.Lookup(ctx, route.Target)
	if err != nil {
		return fmt.Errorf("bus: send %s: %w", route, err)
	}

	if err := s.raise(pid, route.Channel); err != nil {
		s.dropped.Add(1)
		switch {
		case errors.Is(err, signals.ErrDestinationGone):
			s.logger.Warnw("Destination process is gone, notification dropped", "route", route.String(), "pid", pid, "code", int32(code))
		case errors.Is(err, signals.ErrPermissionDenied):
			s.logger.Warnw("No permission to notify process, notification dropped", "route", route.String(), "pid", pid, "code", int32(code))
		default:
			s.logger.Errorw("Failed to notify process", "route", route.String(), "pid", pid, "code", int32(code), "error", err)
		}
		return nil
	}
	s.logger.Debugw("Notification sent", "route", route.String(), "pid", pid, "code", int32(code))
	return nil
}

// Dropped — сколько уведомлений было потеряно из-за недоступного получателя.
func (s *Sender) Dropped() int64 { return s.dropped.Load() }
