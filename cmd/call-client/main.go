package main

import (
	"EyeWear/internal/app/call"
	"EyeWear/internal/app/role"
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/bus"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/ipc/signals"
	"EyeWear/internal/logging"
	"EyeWear/internal/service/rtc"
	"EyeWear/internal/service/signaling"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()
	logger, sync, err := logging.New(cfg.DebugMode, cfg.LogJSON, protocol.RoleCall)
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

	// готовый токен устройства или вход по ключевой паре через API
	var tokens signaling.TokenSource
	if t := strings.TrimSpace(cfg.Call.DeviceToken); t != "" {
		tokens = signaling.StaticToken(t)
	} else {
		auth, err := signaling.LoadAuthenticator(cfg.Call.APIServer, cfg.Call.PublicKeyPath, cfg.Call.PrivateKeyPath)
		if err != nil {
			logger.Errorw("Failed to load device keys", "error", err)
			return 1
		}
		tokens = auth
	}

	sig := signaling.New(cfg.Call, tokens, logger.Named("signaling"))
	// видеоканал WebRTC: поток rpicam-vid уходит оператору после call_accepted
	var dial call.Dialer
	if cfg.Call.Media {
		video := rtc.NewRpicam(cfg.Call, logger.Named("video"))
		dial = func(ctx context.Context, operator string) (call.Media, error) {
			p, err := rtc.Dial(ctx, cfg.Call, video, sig, operator, logger.Named("rtc"))
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	client := call.New(sig, dial, logger)

	box, err := env.Boxes.Ensure(protocol.CallSignal)
	if err != nil {
		logger.Errorw("Failed to attach mailbox", "mailbox", protocol.CallSignal, "error", err)
		return 1
	}
	inbox := bus.NewInbox(logger.Named("inbox"))
	if err := inbox.Bind(signals.Primary, box, true, client.Handle); err != nil {
		logger.Errorw("Failed to bind mailbox", "error", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inbox.Run(gctx) })
	g.Go(func() error { return sig.Run(gctx) })
	g.Go(func() error { return client.Run(gctx) })

	h, err := env.Register(gctx, protocol.RoleCall, inbox.Ready())
	if err != nil {
		logger.Errorw("Failed to register", "error", err)
		stop()
		_ = g.Wait()
		return 1
	}
	defer h.Release()

	logger.Infow("Call client started", "pid", os.Getpid(), "server", cfg.Call.SignalingServer, "media", cfg.Call.Media)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("Call client stopped", "error", err)
		return 1
	}
	logger.Infow("Call client stopped")
	return 0
}
