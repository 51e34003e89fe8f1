package controller

import (
	"EyeWear/internal/app/role"
	"EyeWear/internal/input"
	"EyeWear/internal/ipc/protocol"
	"context"
)

// Serve — полный цикл роли earbud_input: подключает ящики отчётов,
// регистрирует роль после включения приёма сигналов и работает до
// завершения источника или отмены ctx.
func (c *Controller) Serve(ctx context.Context, env *role.Env, src input.Source) error {
	count, err := env.Boxes.Ensure(protocol.OcrQueueCount)
	if err != nil {
		return err
	}
	images, err := env.Boxes.Ensure(protocol.OcrQueueImages)
	if err != nil {
		return err
	}
	if err := c.Bind(count, images); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inboxDone := make(chan error, 1)
	go func() { inboxDone <- c.inbox.Run(ctx) }()

	// источник читается только после успешной регистрации: дубль роли
	// не должен успеть разослать команды
	h, err := env.Register(ctx, protocol.RoleInput, c.inbox.Ready())
	if err != nil {
		cancel()
		<-inboxDone
		return err
	}
	defer h.Release()

	err = c.consume(ctx, src)
	cancel()
	<-inboxDone
	return err
}
