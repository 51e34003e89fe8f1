package main

import (
	"EyeWear/internal/app/role"
	"EyeWear/internal/app/supervisor"
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/logging"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// Супервизор: готовит реестр и ящики, запускает роли и останавливает
// все, как только одна из них завершилась.
func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()
	logger, sync, err := logging.New(cfg.DebugMode, cfg.LogJSON, protocol.RoleSupervisor)
	if err != nil {
		panic(err)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := role.Open(cfg, true, logger)
	if err != nil {
		logger.Errorw("Failed to open IPC", "error", err)
		return 1
	}

	specs, err := supervisor.Specs(cfg.Supervisor, os.Args[1:])
	if err != nil {
		logger.Errorw("Invalid role list", "roles", cfg.Supervisor.Roles, "error", err)
		return 1
	}

	sup := supervisor.New(cfg.Supervisor, env.Registry, env.Boxes, specs, logger)
	// ящики трогает только зарегистрированный экземпляр
	h, err := sup.Claim()
	if err != nil {
		logger.Errorw("Supervisor already running", "error", err)
		return 1
	}
	defer h.Release()
	// владелец удаляет ящики при выходе
	defer env.Close()

	if err := sup.Prepare(); err != nil {
		logger.Errorw("Failed to prepare IPC", "error", err)
		return 1
	}

	logger.Infow("Supervisor started", "pid", os.Getpid(), "roles", cfg.Supervisor.Roles, "shm", cfg.Shm.Backend)
	err = sup.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Infow("Supervisor stopped")
		return 0
	default:
		logger.Errorw("Supervisor stopped", "error", err)
		return 1
	}
}
