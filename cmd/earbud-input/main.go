package main

import (
	"EyeWear/internal/app/controller"
	"EyeWear/internal/app/role"
	"EyeWear/internal/config"
	"EyeWear/internal/input"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/logging"
	"EyeWear/internal/mode"
	"EyeWear/internal/service/audio"
	"EyeWear/internal/service/audio/player"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()
	logger, sync, err := logging.New(cfg.DebugMode, cfg.LogJSON, protocol.RoleInput)
	if err != nil {
		panic(err)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := role.Open(cfg, false, logger)
	if err != nil {
		logger.Errorw("Failed to open IPC", "error", err)
		return 1
	}
	defer env.Close()

	// звуковые подтверждения необязательны
	var cues mode.Cues
	var images controller.ImageCues
	if cfg.Sound.Enabled {
		fb := audio.NewFeedback(cfg.Sound.Dir, player.NewWithVolume(cfg.Sound.VolumeDB), logger.Named("feedback"))
		go func() { _ = fb.Run(ctx) }()
		cues, images = fb, fb
	}

	machine := mode.NewMachine(env.Sender, cues, logger.Named("mode"))
	ctl := controller.New(machine, images, logger)

	// INPUT_DEVICE=- читает жесты и команды построчно из stdin
	var src input.Source
	if cfg.Input.Device == "-" {
		src = input.Lines(os.Stdin, logger.Named("stdin"))
	} else {
		src = input.NewEvdev(input.Config{
			Device:          cfg.Input.Device,
			Exclude:         cfg.Input.Exclude,
			Reconnect:       cfg.Input.Reconnect,
			Grab:            cfg.Input.Grab,
			DoubleTapWindow: cfg.Input.DoubleTapWindow,
			LongPress:       cfg.Input.LongPress,
		}, logger.Named("evdev"))
	}

	logger.Infow("Starting earbud input", "pid", os.Getpid(), "device", cfg.Input.Device, "sound", cfg.Sound.Enabled)
	if err := ctl.Serve(ctx, env, src); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("Earbud input stopped", "error", err)
		return 1
	}
	return 0
}
