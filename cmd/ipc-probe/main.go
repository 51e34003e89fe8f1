package main

import (
	"EyeWear/internal/app/role"
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/bus"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/ipc/signals"
	"EyeWear/internal/logging"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Небольшая утилита для проверки IPC без остальных ролей:
//
//	ipc-probe listen -name signal_test            # регистрируется и печатает пришедшие коды
//	ipc-probe emit -name signal_test -code 4      # пишет код в ящик и будит получателя
//
// Реестр и ящики настраиваются теми же переменными окружения, что и роли.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet("ipc-probe "+cmd, flag.ExitOnError)
	name := fs.String("name", "signal_test", "имя процесса и ящика")
	channel := fs.String("channel", "usr1", "канал уведомления: usr1|usr2")
	code := fs.Int("code", 1, "код для emit")
	wait := fs.Duration("wait", 5*time.Second, "сколько emit ждёт регистрации получателя")
	_ = fs.Parse(args)

	ch, err := signals.ParseChannel(*channel)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	switch cmd {
	case "listen":
		os.Exit(listen(*name, ch))
	case "emit":
		os.Exit(emit(*name, ch, protocol.Code(*code), *wait))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage: ipc-probe listen|emit [-name signal_test] [-channel usr1] [-code N] [-wait 5s]")
}

func open() (*role.Env, func(), error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}
	logger, sync, err := logging.New(cfg.DebugMode, cfg.LogJSON, "ipc-probe")
	if err != nil {
		return nil, nil, err
	}
	env, err := role.Open(cfg, false, logger)
	if err != nil {
		sync()
		return nil, nil, err
	}
	return env, func() { _ = env.Close(); sync() }, nil
}

func listen(name string, ch signals.Channel) int {
	env, closeEnv, err := open()
	if err != nil {
		fmt.Println("ipc:", err)
		return 1
	}
	defer closeEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mb, err := env.Boxes.Ensure(name)
	if err != nil {
		fmt.Println("mailbox:", err)
		return 1
	}
	inbox := bus.NewInbox(nil)
	err = inbox.Bind(ch, mb, true, func(_ context.Context, v int32) {
		fmt.Printf("%s %s: %d\n", time.Now().Format(time.TimeOnly), name, v)
	})
	if err != nil {
		fmt.Println("bind:", err)
		return 1
	}

	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()

	h, err := env.Register(ctx, name, inbox.Ready())
	if err != nil {
		fmt.Println(err)
		stop()
		<-done
		return 1
	}
	defer h.Release()

	fmt.Printf("listening as %s (pid %d) on %s, Ctrl+C to stop\n", name, os.Getpid(), ch)
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println(err)
		return 1
	}
	return 0
}

func emit(name string, ch signals.Channel, code protocol.Code, wait time.Duration) int {
	env, closeEnv, err := open()
	if err != nil {
		fmt.Println("ipc:", err)
		return 1
	}
	defer closeEnv()

	ctx, cancel := context.WithTimeoutCause(context.Background(), wait, fmt.Errorf("%s is not registered", name))
	defer cancel()

	route := protocol.Route{Mailbox: name, Target: name, Channel: ch}
	if err := env.Sender.Send(ctx, route, code); err != nil {
		fmt.Println(err)
		return 1
	}
	if env.Sender.Dropped() > 0 {
		fmt.Printf("%s: notification dropped\n", route)
		return 1
	}
	fmt.Printf("%s: sent %d\n", route, int32(code))
	return 0
}
