package input

import (
	"EyeWear/internal/mode"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrUnknownLine = errors.New("input: unknown line")

// ParseLine разбирает строку: имя команды эмулятора (cc, roc, h, m, tn, so, po)
// или жест (single|s, double|d, long|l).
func ParseLine(s string) (Input, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "single", "s":
		return Input{Kind: Press, Event: mode.SingleTap}, nil
	case "double", "d":
		return Input{Kind: Press, Event: mode.DoubleTap}, nil
	case "long", "l":
		return Input{Kind: Press, Event: mode.LongPress}, nil
	}
	a, err := mode.ParseCommand(s)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %q", ErrUnknownLine, s)
	}
	return Input{Kind: Command, Action: a}, nil
}

// LineSource читает команды построчно и минует классификацию нажатий.
type LineSource struct {
	r      io.Reader
	logger *zap.SugaredLogger
	out    chan Input
}

func Lines(r io.Reader, logger *zap.SugaredLogger) *LineSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LineSource{r: r, logger: logger, out: make(chan Input, 16)}
}

func (l *LineSource) Events() <-chan Input { return l.out }

// Run читает до EOF (возвращает nil) или до отмены ctx.
func (l *LineSource) Run(ctx context.Context) error {
	defer close(l.out)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(l.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case err := <-scanErr:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			in, err := ParseLine(line)
			if err != nil {
				l.logger.Warnw("Unknown input line", "line", line, "help", mode.CommandHelp())
				continue
			}
			in.At = time.Now()
			// строки не теряем: ждём потребителя
			select {
			case l.out <- in:
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
	}
}
