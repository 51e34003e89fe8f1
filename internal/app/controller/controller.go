package controller

import (
	"EyeWear/internal/input"
	"EyeWear/internal/ipc/bus"
	"EyeWear/internal/ipc/mailbox"
	"EyeWear/internal/ipc/signals"
	"EyeWear/internal/mode"
	"context"
	"errors"

	"go.uber.org/zap"
)

// ImageCues озвучивает число снимков в обработке (audio.Feedback).
type ImageCues interface {
	Images(ctx context.Context, n int)
}

// Controller — роль earbud_input: события источника ввода идут в автомат
// режимов, а отчёты процесса OCR приходят через ящики очереди.
type Controller struct {
	machine *mode.Machine
	images  ImageCues
	inbox   *bus.Inbox
	logger  *zap.SugaredLogger
}

func New(machine *mode.Machine, images ImageCues, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{machine: machine, images: images, inbox: bus.NewInbox(logger), logger: logger}
}

// Inbox — приёмник отчётов OCR.
func (c *Controller) Inbox() *bus.Inbox { return c.inbox }

// Bind подключает ящики отчётов: длина очереди по Primary, число снимков по
// Secondary. Это ящики-отчёты, ноль в них — значимое значение.
func (c *Controller) Bind(count, images *mailbox.Mailbox) error {
	return errors.Join(
		c.inbox.Bind(signals.Primary, count, false, c.OnQueueCount),
		c.inbox.Bind(signals.Secondary, images, false, c.OnQueueImages),
	)
}

func (c *Controller) OnQueueCount(ctx context.Context, v int32) {
	c.logger.Infow("OCR queue depth reported", "depth", v, "mode", c.machine.Mode().String())
	c.machine.ReportQueueDepth(ctx, int(v))
}

func (c *Controller) OnQueueImages(ctx context.Context, v int32) {
	c.logger.Infow("OCR images reported", "images", v)
	if c.images != nil {
		c.images.Images(ctx, int(v))
	}
}

// Handle передаёт одно событие ввода автомату.
func (c *Controller) Handle(ctx context.Context, in input.Input) {
	switch in.Kind {
	case input.Press:
		c.machine.Dispatch(ctx, in.Event)
	case input.Command:
		_ = c.machine.Perform(ctx, in.Action)
	default:
		c.logger.Warnw("Unknown input kind", "kind", in.Kind.String())
	}
}

// Run запускает приёмник отчётов и источник ввода. Завершается, когда
// источник закрыл поток событий или отменён ctx.
func (c *Controller) Run(ctx context.Context, src input.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inboxDone := make(chan error, 1)
	go func() { inboxDone <- c.inbox.Run(ctx) }()

	err := c.consume(ctx, src)
	cancel()
	<-inboxDone
	return err
}

// consume читает источник до его завершения и передаёт события автомату.
func (c *Controller) consume(ctx context.Context, src input.Source) error {
	srcDone := make(chan error, 1)
	go func() { srcDone <- src.Run(ctx) }()

	c.logger.Infow("Controller started", "mode", c.machine.Mode().String())
	for in := range src.Events() {
		c.Handle(ctx, in)
	}

	err := <-srcDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Infow("Controller stopped", "mode", c.machine.Mode().String())
	return nil
}
