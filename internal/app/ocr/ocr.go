package ocr

import (
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/service/audio"
	"EyeWear/internal/service/camera"
	"EyeWear/internal/service/queue"
	"EyeWear/internal/service/recognizer"
	"EyeWear/internal/service/tts"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var errSessionStopped = errors.New("ocr session stopped")

// Reporter отправляет отчёты о длине очереди процессу ввода (bus.Sender).
type Reporter interface {
	Send(ctx context.Context, route protocol.Route, code protocol.Code) error
}

// Pauser ставит на паузу озвучку (player.Default).
type Pauser interface {
	SetPaused(bool)
	Paused() bool
}

// Cues — звуковые сигналы процесса OCR (audio.Feedback).
type Cues interface {
	Enqueue(seq ...audio.Sound)
}

type Deps struct {
	Camera     camera.Camera
	Recognizer recognizer.Recognizer
	Speaker    tts.Speaker // nil — текст только логируется
	Pauser     Pauser
	Cues       Cues
	Reporter   Reporter
}

// session — один запуск OCR от StartOcr до StopOcr.
type session struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	gen    int64
}

// Service — процесс OCR: снимает кадры по командам, распознаёт их по очереди
// и зачитывает текст. Длина очереди уходит обратно процессу ввода.
type Service struct {
	cfg    config.OCRConfig
	deps   Deps
	logger *zap.SugaredLogger

	jobs  *queue.Queue[job]
	texts *queue.Queue[job]

	inflight  atomic.Int32
	speaking  atomic.Int32
	capturing atomic.Int32

	mu   sync.Mutex
	sess *session
	gen  int64
}

// job — снимок или текст, привязанный к поколению сессии.
type job struct {
	gen  int64
	path string
	text string
}

func New(cfg config.OCRConfig, deps Deps, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		jobs:   queue.New[job](32),
		texts:  queue.New[job](32),
	}
}

// Depth — всё, что ещё не дочитано: снимки в очереди и в работе, тексты и съёмка.
func (s *Service) Depth() int {
	return s.jobs.Len() + s.texts.Len() +
		int(s.inflight.Load()+s.speaking.Load()+s.capturing.Load())
}

// Images — снимки, ожидающие распознавания.
func (s *Service) Images() int {
	return s.jobs.Len() + int(s.inflight.Load())
}

// Running сообщает, идёт ли сессия.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess != nil
}

// Handle обрабатывает код из ящика ocr_signal. Вызывается из цикла Inbox.
func (s *Service) Handle(ctx context.Context, value int32) {
	code := protocol.Code(value)
	s.logger.Infow("OCR command received", "code", protocol.OcrCodeName(code))

	switch code {
	case protocol.StartOcr:
		if _, started := s.begin(ctx); !started {
			s.logger.Infow("OCR already running, start ignored")
			return
		}
		s.capture()
	case protocol.NewPicture:
		s.begin(ctx)
		s.capture()
	case protocol.PauseOcr:
		s.togglePause()
	case protocol.StopOcr, protocol.StopOcrNow:
		s.stop(code == protocol.StopOcrNow)
	default:
		s.logger.Warnw("Неизвестный код OCR", "code", value)
	}
}

// begin запускает сессию, если её нет. started=false — сессия уже шла.
func (s *Service) begin(ctx context.Context) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return s.sess, false
	}
	s.gen++
	sctx, cancel := context.WithCancelCause(ctx)
	s.sess = &session{ctx: sctx, cancel: cancel, gen: s.gen}
	s.logger.Infow("OCR session started", "gen", s.gen)
	return s.sess, true
}

func (s *Service) current() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Service) togglePause() {
	if s.deps.Pauser == nil {
		return
	}
	paused := !s.deps.Pauser.Paused()
	s.deps.Pauser.SetPaused(paused)
	s.logger.Infow("OCR readout pause toggled", "paused", paused)
}

// stop завершает сессию: отменяет съёмку, распознавание и озвучку,
// очищает очереди и удаляет необработанные снимки.
func (s *Service) stop(forced bool) {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if sess == nil {
		s.logger.Infow("OCR not running, stop ignored", "forced", forced)
		return
	}
	sess.cancel(errSessionStopped)

	dropped := 0
	for _, j := range s.jobs.Drain() {
		removeImage(s.logger, j.path)
		dropped++
	}
	dropped += len(s.texts.Drain())
	if s.deps.Pauser != nil {
		s.deps.Pauser.SetPaused(false)
	}
	s.logger.Infow("OCR session stopped", "gen", sess.gen, "forced", forced, "dropped", dropped)
}

// capture снимает кадр в фоне, чтобы не задерживать цикл Inbox.
func (s *Service) capture() {
	sess := s.current()
	if sess == nil {
		return
	}
	s.capturing.Add(1)
	go func() {
		path, err := s.deps.Camera.Capture(sess.ctx)
		queued := err == nil && sess.ctx.Err() == nil && s.jobs.Push(job{gen: sess.gen, path: path})
		// снимок уже в очереди, съёмка больше не учитывается в Depth
		s.capturing.Add(-1)

		switch {
		case err != nil:
			if sess.ctx.Err() == nil {
				s.logger.Errorw("Image capture failed", "error", err)
				s.cue(audio.TryAgainLater)
				s.report(sess.ctx, protocol.QueueCountRoute, s.Depth())
			}
		case !queued:
			s.logger.Warnw("Снимок отброшен", "path", path, "sessionDone", sess.ctx.Err() != nil)
			removeImage(s.logger, path)
		default:
			images := s.Images()
			s.logger.Infow("Image queued", "path", path, "images", images)
			s.report(sess.ctx, protocol.QueueImagesRoute, images)
		}
	}()
}

func (s *Service) cue(seq ...audio.Sound) {
	if s.deps.Cues != nil {
		s.deps.Cues.Enqueue(seq...)
	}
}

func (s *Service) report(ctx context.Context, route protocol.Route, n int) {
	if s.deps.Reporter == nil {
		return
	}
	// отчёт уходит и после отмены сессии: процесс ввода должен узнать итог
	if err := s.deps.Reporter.Send(context.WithoutCancel(ctx), route, protocol.Code(n)); err != nil {
		s.logger.Warnw("Failed to report OCR queue", "route", route.String(), "value", n, "error", err)
	}
}

// Run запускает распознавание и озвучку и блокирует до отмены ctx.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Infow("OCR service started", "maxConsecutiveErrors", s.cfg.MaxConsecutiveErrors, "tts", s.deps.Speaker != nil)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.recognizeLoop(ctx) }()
	go func() { defer wg.Done(); s.readLoop(ctx) }()
	<-ctx.Done()
	s.stop(false)
	wg.Wait()
	return context.Cause(ctx)
}

func (s *Service) recognizeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.jobs.NotifyCh():
		}
		for {
			j, ok := s.jobs.Pop()
			if !ok {
				break
			}
			s.inflight.Add(1)
			s.recognize(ctx, j)
			s.inflight.Add(-1)
		}
	}
}

// recognize распознаёт один снимок с повторами. После MaxConsecutiveErrors
// ошибок подряд снимок удаляется, а пользователь слышит «попробуйте позже».
func (s *Service) recognize(ctx context.Context, j job) {
	sess := s.current()
	if sess == nil || sess.gen != j.gen {
		removeImage(s.logger, j.path)
		return
	}

	consecutiveErrors := 0
	for {
		text, err := s.deps.Recognizer.Recognize(sess.ctx, j.path)
		if err == nil {
			removeImage(s.logger, j.path)
			text = strings.TrimSpace(text)
			if text == "" {
				s.logger.Infow("No text recognized", "path", j.path)
				s.finish(sess)
				return
			}
			j.text = text
			if !s.texts.Push(j) {
				s.logger.Warnw("Очередь озвучки переполнена, текст отброшен", "path", j.path)
			}
			return
		}
		if sess.ctx.Err() != nil {
			removeImage(s.logger, j.path)
			return
		}

		consecutiveErrors++
		s.logger.Errorw("Recognition failed", "path", j.path, "error", err, "consecutiveErrors", consecutiveErrors)
		if consecutiveErrors >= s.cfg.MaxConsecutiveErrors {
			s.logger.Errorw("Giving up on image", "path", j.path, "threshold", s.cfg.MaxConsecutiveErrors)
			removeImage(s.logger, j.path)
			s.cue(audio.TryAgainLater)
			s.finish(sess)
			return
		}
		select {
		case <-sess.ctx.Done():
			removeImage(s.logger, j.path)
			return
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

func (s *Service) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.texts.NotifyCh():
		}
		for {
			j, ok := s.texts.Pop()
			if !ok {
				break
			}
			s.speaking.Add(1)
			s.read(j)
			s.speaking.Add(-1)
		}
	}
}

func (s *Service) read(j job) {
	sess := s.current()
	if sess == nil || sess.gen != j.gen {
		return
	}
	s.logger.Infow("Reading recognized text", "chars", len([]rune(j.text)))
	if s.deps.Speaker == nil {
		s.logger.Infow("Recognized text", "text", j.text)
	} else if err := s.deps.Speaker.Speak(sess.ctx, j.text); err != nil && sess.ctx.Err() == nil {
		s.logger.Errorw("Failed to speak recognized text", "error", err)
	}
	s.finish(sess)
}

// finish сообщает процессу ввода, сколько осталось. Ноль в режиме Ocr
// завершает режим на стороне ввода. Вызывается из воркера, пока его элемент
// ещё учтён в Depth, поэтому этот элемент вычитается.
func (s *Service) finish(sess *session) {
	if sess.ctx.Err() != nil {
		return
	}
	depth := max(0, s.Depth()-1)
	s.logger.Infow("OCR item finished", "depth", depth)
	s.report(sess.ctx, protocol.QueueCountRoute, depth)
}

func removeImage(logger *zap.SugaredLogger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnw("Не удалось удалить снимок", "path", path, "error", err)
	}
}
