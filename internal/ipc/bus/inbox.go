package bus

import (
	"EyeWear/internal/ipc/mailbox"
	"EyeWear/internal/ipc/signals"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Handler выполняет реальную работу по значению из ящика. Вызывается из
// основного цикла Inbox.Run, а не из контекста сигнала.
type Handler func(ctx context.Context, value int32)

type binding struct {
	mailbox *mailbox.Mailbox
	reset   bool
	handle  Handler
}

// Inbox связывает канал уведомлений с ящиком и обработчиком.
type Inbox struct {
	logger   *zap.SugaredLogger
	bindings map[signals.Channel]binding
	ready    chan struct{}
}

var ErrChannelBound = errors.New("bus: channel already bound")

func NewInbox(logger *zap.SugaredLogger) *Inbox {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Inbox{logger: logger, bindings: make(map[signals.Channel]binding, 2), ready: make(chan struct{})}
}

// Bind регистрирует обработчик канала. reset=true для командных ящиков: значение
// забирается с обнулением, а пустой ящик (protocol.None) не вызывает обработчик.
// Для ящиков-отчётов (reset=false) ноль — полноценное значение.
func (i *Inbox) Bind(ch signals.Channel, mb *mailbox.Mailbox, reset bool, h Handler) error {
	if ch.Signal() == 0 {
		return fmt.Errorf("%w: %d", signals.ErrUnknownChannel, int(ch))
	}
	if _, ok := i.bindings[ch]; ok {
		return fmt.Errorf("%w: %s", ErrChannelBound, ch)
	}
	i.bindings[ch] = binding{mailbox: mb, reset: reset, handle: h}
	return nil
}

// Ready закрывается, когда приём сигналов включён.
func (i *Inbox) Ready() <-chan struct{} { return i.ready }

// Run включает приём сигналов и обрабатывает пробуждения до отмены ctx.
func (i *Inbox) Run(ctx context.Context) error {
	chs := make([]signals.Channel, 0, len(i.bindings))
	for ch := range i.bindings {
		chs = append(chs, ch)
	}
	rcv := signals.Install(chs...)
	defer rcv.Stop()
	close(i.ready)

	i.logger.Infow("Inbox listening", "channels", fmt.Sprint(chs))
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case ch := <-rcv.Wakeups():
			// Ack до чтения: уведомление, пришедшее во время обработки, даст новое пробуждение
			rcv.Ack(ch)
			i.Deliver(ctx, ch)
		}
	}
}

// Deliver читает ящик канала и вызывает обработчик. Паника обработчика
// перехватывается и логируется.
func (i *Inbox) Deliver(ctx context.Context, ch signals.Channel) {
	b, ok := i.bindings[ch]
	if !ok {
		i.logger.Warnw("Wakeup on unbound channel", "channel", ch.String())
		return
	}

	var value int32
	if b.reset {
		v, err := b.mailbox.Swap(0)
		if err != nil {
			i.logger.Errorw("Failed to read mailbox", "mailbox", b.mailbox.Name(), "error", err)
			return
		}
		if v == 0 {
			i.logger.Debugw("Spurious wakeup, mailbox empty", "mailbox", b.mailbox.Name())
			return
		}
		value = v
	} else {
		value = b.mailbox.Read()
	}

	defer func() {
		if r := recover(); r != nil {
			i.logger.Errorw("Mailbox handler panicked", "mailbox", b.mailbox.Name(), "value", value, "panic", r)
		}
	}()
	b.handle(ctx, value)
}
