package main

import (
	"EyeWear/internal/app/controller"
	"EyeWear/internal/app/emulator"
	"EyeWear/internal/app/role"
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/logging"
	"EyeWear/internal/mode"
	"EyeWear/internal/service/audio"
	"EyeWear/internal/service/audio/player"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()
	// терминал занят интерфейсом, логи пишутся в файл
	logPath := filepath.Join(os.TempDir(), "eyewear-emulator.log")
	logger, sync, err := logging.New(cfg.DebugMode, cfg.LogJSON, protocol.RoleInput, logPath)
	if err != nil {
		panic(err)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := role.Open(cfg, false, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emulator:", err)
		return 1
	}
	defer env.Close()

	var cues mode.Cues
	var images controller.ImageCues
	if cfg.Sound.Enabled {
		fb := audio.NewFeedback(cfg.Sound.Dir, player.NewWithVolume(cfg.Sound.VolumeDB), logger.Named("feedback"))
		go func() { _ = fb.Run(ctx) }()
		cues, images = fb, fb
	}

	machine := mode.NewMachine(env.Sender, cues, logger.Named("mode"))
	ctl := controller.New(machine, images, logger)
	em := emulator.New(machine.Mode, logger.Named("emulator"))

	logger.Infow("Starting emulator", "pid", os.Getpid(), "log", logPath)
	if err := ctl.Serve(ctx, env, em); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("Emulator stopped", "error", err)
		fmt.Fprintln(os.Stderr, "emulator:", err)
		return 1
	}
	return 0
}
