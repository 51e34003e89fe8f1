package role

import (
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/bus"
	"EyeWear/internal/ipc/mailbox"
	"EyeWear/internal/ipc/registry"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Env — IPC-обвязка процесса роли: реестр, ящики и отправитель.
type Env struct {
	Registry *registry.Registry
	Boxes    *mailbox.Set
	Sender   *bus.Sender
}

// Open подключает процесс к реестру и ящикам. owner=true только у супервизора.
func Open(cfg *config.Config, owner bool, logger *zap.SugaredLogger) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	backend, err := mailbox.ParseBackend(cfg.Shm.Backend)
	if err != nil {
		return nil, err
	}
	opts := []mailbox.Option{mailbox.WithDir(cfg.Shm.Dir), mailbox.WithBackend(backend)}
	if owner {
		opts = append(opts, mailbox.WithOwner())
	}

	reg := registry.New(cfg.Registry.Root, cfg.Registry.PollInterval, logger.Named("registry"))
	boxes := mailbox.NewSet(opts...)
	return &Env{
		Registry: reg,
		Boxes:    boxes,
		Sender:   bus.NewSender(reg, boxes, logger.Named("bus")),
	}, nil
}

// Register регистрирует роль, когда приём сигналов уже включён: иначе
// ранний сигнал от другого процесса завершил бы этот процесс.
func (e *Env) Register(ctx context.Context, name string, ready <-chan struct{}) (*registry.Handle, error) {
	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	h, err := e.Registry.Register(name)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return h, nil
}

// Close отключает ящики (владелец их удаляет).
func (e *Env) Close() error {
	return e.Boxes.Close()
}
