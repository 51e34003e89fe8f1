package signals

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Channel — один из двух асинхронных каналов уведомления процесса.
// Больше каналов нет: разные события мультиплексируются кодом в почтовом ящике.
type Channel int

const (
	Primary   Channel = iota + 1 // SIGUSR1
	Secondary                    // SIGUSR2
)

var (
	ErrDestinationGone  = errors.New("signals: destination process is gone")
	ErrPermissionDenied = errors.New("signals: permission denied")
	ErrUnknownChannel   = errors.New("signals: unknown channel")
)

// Signal возвращает номер сигнала ОС для канала.
func (c Channel) Signal() syscall.Signal {
	switch c {
	case Primary:
		return syscall.SIGUSR1
	case Secondary:
		return syscall.SIGUSR2
	default:
		return 0
	}
}

func (c Channel) String() string {
	switch c {
	case Primary:
		return "usr1"
	case Secondary:
		return "usr2"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel разбирает имя канала из флагов/конфига.
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "usr1", "USR1", "SIGUSR1", "1":
		return Primary, nil
	case "usr2", "USR2", "SIGUSR2", "2":
		return Secondary, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

func fromSignal(s os.Signal) (Channel, bool) {
	switch s {
	case syscall.SIGUSR1:
		return Primary, true
	case syscall.SIGUSR2:
		return Secondary, true
	}
	return 0, false
}

// Raise отправляет уведомление процессу pid. Отсутствие процесса и отказ в правах
// возвращаются как ErrDestinationGone / ErrPermissionDenied.
func Raise(pid int, ch Channel) error {
	sig := ch.Signal()
	if sig == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, int(ch))
	}
	if pid <= 0 {
		return fmt.Errorf("%w: invalid pid %d", ErrDestinationGone, pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return fmt.Errorf("%w: pid %d", ErrDestinationGone, pid)
		case errors.Is(err, unix.EPERM):
			return fmt.Errorf("%w: pid %d", ErrPermissionDenied, pid)
		}
		return fmt.Errorf("signals: kill %d %s: %w", pid, ch, err)
	}
	return nil
}

// Alive — неразрушающая проверка существования процесса (kill(pid, 0)).
// EPERM означает, что процесс есть, но он чужой.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Receiver принимает уведомления. Обработчик сигнала рантайма Go только кладёт сигнал
// в очередь; здесь он превращается в «пробуждение» ёмкостью один на канал.
// Несколько быстрых уведомлений могут схлопнуться в одно: получатель обязан
// перечитать текущее состояние ящика, а не считать события.
type Receiver struct {
	sigCh   chan os.Signal
	sigs    []os.Signal
	wakeups chan Channel
	pending map[Channel]chan struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Install включает приём указанных каналов в текущем процессе.
func Install(chs ...Channel) *Receiver {
	r := &Receiver{
		sigCh:   make(chan os.Signal, 8),
		wakeups: make(chan Channel, 2),
		pending: make(map[Channel]chan struct{}, 2),
		done:    make(chan struct{}),
	}
	sigs := make([]os.Signal, 0, len(chs))
	for _, ch := range chs {
		if ch.Signal() == 0 {
			continue
		}
		if _, ok := r.pending[ch]; ok {
			continue
		}
		r.pending[ch] = make(chan struct{}, 1)
		sigs = append(sigs, ch.Signal())
	}
	// пустой список в Notify означает «все сигналы»
	if len(sigs) > 0 {
		signal.Notify(r.sigCh, sigs...)
	}
	r.sigs = sigs

	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Receiver) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case s := <-r.sigCh:
			ch, ok := fromSignal(s)
			if !ok {
				continue
			}
			slot, ok := r.pending[ch]
			if !ok {
				continue
			}
			// Непрочитанное пробуждение этого канала уже есть, схлопываем.
			select {
			case slot <- struct{}{}:
			default:
				continue
			}
			select {
			case r.wakeups <- ch:
			case <-r.done:
				return
			}
		}
	}
}

// Wakeups — канал пробуждений. После чтения значения нужно вызвать Ack(ch),
// иначе следующие уведомления по этому каналу будут схлопываться.
func (r *Receiver) Wakeups() <-chan Channel { return r.wakeups }

// Ack снимает отметку «пробуждение ожидает обработки».
func (r *Receiver) Ack(ch Channel) {
	if slot, ok := r.pending[ch]; ok {
		select {
		case <-slot:
		default:
		}
	}
}

// Stop отключает приём сигналов. Повторный вызов безопасен.
func (r *Receiver) Stop() {
	r.once.Do(func() {
		if len(r.sigs) > 0 {
			signal.Stop(r.sigCh)
		}
		close(r.done)
		r.wg.Wait()
	})
}
