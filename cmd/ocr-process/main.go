package main

import (
	"EyeWear/internal/app/ocr"
	"EyeWear/internal/app/role"
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/bus"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/ipc/signals"
	"EyeWear/internal/logging"
	"EyeWear/internal/service/audio"
	"EyeWear/internal/service/audio/player"
	"EyeWear/internal/service/camera"
	"EyeWear/internal/service/image"
	"EyeWear/internal/service/recognizer"
	"EyeWear/internal/service/tts"
	"EyeWear/internal/service/tts/google"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const cleanEvery = time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()
	logger, sync, err := logging.New(cfg.DebugMode, cfg.LogJSON, protocol.RoleOcr)
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

	cam, err := camera.New(cfg.Camera, logger.Named("camera"))
	if err != nil {
		logger.Errorw("Failed to create camera", "error", err)
		return 1
	}
	rec, err := recognizer.New(cfg.OCR, logger.Named("recognizer"))
	if err != nil {
		logger.Errorw("Failed to create recognizer", "error", err)
		return 1
	}

	ply := player.NewWithVolume(cfg.Sound.VolumeDB)
	deps := ocr.Deps{Camera: cam, Recognizer: rec, Pauser: ply, Reporter: env.Sender}

	// без TTS распознанный текст только пишется в лог
	var speaker tts.Speaker
	if cfg.TTSEnabled {
		if err := cfg.PrepareGoogleCredentials(); err != nil {
			logger.Warnw("Google TTS отключён", "error", err)
		} else {
			g := google.New(cfg.GoogleTTS, ply, logger.Named("tts"))
			defer g.Close()
			speaker = g
		}
	}
	deps.Speaker = speaker

	var feedback *audio.Feedback
	if cfg.Sound.Enabled {
		feedback = audio.NewFeedback(cfg.Sound.Dir, ply, logger.Named("feedback"))
		deps.Cues = feedback
	}

	svc := ocr.New(cfg.OCR, deps, logger)

	box, err := env.Boxes.Ensure(protocol.OcrSignal)
	if err != nil {
		logger.Errorw("Failed to attach mailbox", "mailbox", protocol.OcrSignal, "error", err)
		return 1
	}
	inbox := bus.NewInbox(logger.Named("inbox"))
	if err := inbox.Bind(signals.Primary, box, true, svc.Handle); err != nil {
		logger.Errorw("Failed to bind mailbox", "error", err)
		return 1
	}

	cleaner := image.NewCleaner(cfg.Camera.ImagesDir, cfg.Camera.ImagesTTL, logger.Named("cleaner"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inbox.Run(gctx) })
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error {
		cleaner.Run(gctx, cleanEvery)
		return nil
	})
	if feedback != nil {
		g.Go(func() error { return feedback.Run(gctx) })
	}

	h, err := env.Register(gctx, protocol.RoleOcr, inbox.Ready())
	if err != nil {
		logger.Errorw("Failed to register", "error", err)
		stop()
		_ = g.Wait()
		return 1
	}
	defer h.Release()

	logger.Infow("OCR process started", "pid", os.Getpid(), "camera", cfg.Camera.Backend, "ocr", cfg.OCR.Backend, "tts", speaker != nil)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("OCR process stopped", "error", err)
		return 1
	}
	logger.Infow("OCR process stopped")
	return 0
}
