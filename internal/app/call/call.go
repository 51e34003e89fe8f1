package call

import (
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/service/signaling"
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// State — состояние звонка на устройстве.
type State int

const (
	Idle State = iota
	Requested
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Signaler — сигнальный канал (signaling.Client).
type Signaler interface {
	Send(ctx context.Context, msg signaling.Message) error
	Events() <-chan signaling.Message
}

// Media — видеоканал принятого звонка (rtc.Peer).
type Media interface {
	Answer(sdp string) error
	AddCandidate(raw json.RawMessage) error
	Close() error
}

// Dialer поднимает видеоканал к оператору и отправляет ему offer.
type Dialer func(ctx context.Context, operator string) (Media, error)

// Client — процесс звонков: команды из ящика call_signal превращает в
// сообщения сигнального сервера и следит за состоянием звонка.
type Client struct {
	sig    Signaler
	dial   Dialer
	logger *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	muted    bool
	operator string
	deviceID string
	media    Media
	// номер звонка: растёт при каждом принятии и сбросе
	gen uint64
}

// New создаёт клиента. dial может быть nil: тогда звонок идёт без видеоканала.
func New(sig Signaler, dial Dialer, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{sig: sig, dial: dial, logger: logger}
}

// Snapshot возвращает состояние звонка и микрофона.
func (c *Client) Snapshot() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.muted
}

// Handle обрабатывает код из ящика call_signal. Вызывается из цикла Inbox.
func (c *Client) Handle(ctx context.Context, value int32) {
	code := protocol.Code(value)
	c.logger.Infow("Call command received", "code", protocol.CallCodeName(code))

	switch code {
	case protocol.StartCall:
		c.request(ctx)
	case protocol.EndCall:
		c.hangUp(ctx)
	case protocol.ToggleMute:
		c.toggleMute()
	default:
		c.logger.Warnw("Неизвестный код звонка", "code", value)
	}
}

func (c *Client) request(ctx context.Context) {
	c.mu.Lock()
	if c.state != Idle {
		st := c.state
		c.mu.Unlock()
		c.logger.Infow("Call already in progress, request ignored", "state", st.String())
		return
	}
	c.mu.Unlock()

	if err := c.sig.Send(ctx, signaling.Message{Type: signaling.TypeRequestCall}); err != nil {
		c.logger.Errorw("Failed to request call", "error", err)
		return
	}
	c.mu.Lock()
	if c.state == Idle {
		c.state = Requested
		c.muted = false
	}
	c.mu.Unlock()
	c.logger.Infow("Call requested")
}

func (c *Client) hangUp(ctx context.Context) {
	c.mu.Lock()
	st := c.state
	media := c.reset()
	c.mu.Unlock()

	c.closeMedia(media)
	if st == Idle {
		c.logger.Infow("No call to end")
		return
	}
	if err := c.sig.Send(ctx, signaling.Message{Type: signaling.TypeCallEnded}); err != nil {
		c.logger.Warnw("Не удалось отправить call_ended", "error", err)
	}
	c.logger.Infow("Call ended", "was", st.String())
}

func (c *Client) toggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		c.logger.Infow("Not in call, mute ignored")
		return
	}
	c.muted = !c.muted
	c.logger.Infow("Microphone toggled", "muted", c.muted)
}

// reset возвращает клиента в Idle и отдаёт видеоканал для закрытия. Под c.mu.
func (c *Client) reset() Media {
	media := c.media
	c.state = Idle
	c.muted = false
	c.operator = ""
	c.media = nil
	c.gen++
	return media
}

func (c *Client) closeMedia(m Media) {
	if m == nil {
		return
	}
	if err := m.Close(); err != nil {
		c.logger.Warnw("Failed to close media", "error", err)
	}
}

// Run обрабатывает сообщения сигнального сервера до отмены ctx.
// При выходе видеоканал закрывается.
func (c *Client) Run(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		media := c.media
		c.media = nil
		c.mu.Unlock()
		c.closeMedia(media)
	}()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case msg := <-c.sig.Events():
			c.onMessage(ctx, msg)
		}
	}
}

func (c *Client) onMessage(ctx context.Context, msg signaling.Message) {
	if msg.Type == signaling.TypeCallAccepted {
		c.accept(ctx, msg.OperatorID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case signaling.TypeAuthenticated:
		c.deviceID = msg.DeviceID
		c.logger.Infow("Authenticated as device", "deviceId", msg.DeviceID)
	case signaling.TypeCallQueued:
		c.logger.Infow("Call added to queue", "position", msg.Position)
	case signaling.TypeAnswer:
		if c.media == nil {
			c.logger.Warnw("Received answer but not in call")
			return
		}
		if err := c.media.Answer(msg.SDP); err != nil {
			c.logger.Errorw("Failed to apply answer", "error", err)
		}
	case signaling.TypeCandidate:
		if c.media == nil {
			c.logger.Warnw("Received ICE candidate but not in call")
			return
		}
		if err := c.media.AddCandidate(msg.Candidate); err != nil {
			c.logger.Warnw("Failed to add ICE candidate", "error", err)
		}
	case signaling.TypePeerDisconnected:
		if c.state != Idle {
			c.logger.Infow("Operator disconnected", "operatorId", c.operator)
		}
		c.closeMedia(c.reset())
	case signaling.TypeError:
		c.logger.Errorw("Signaling server error", "message", msg.Message)
	default:
		c.logger.Debugw("Unhandled signaling message", "type", msg.Type)
	}
}

// accept переводит звонок в Active и поднимает видеоканал. Канал
// поднимается без c.mu, чтобы команды из ящика не ждали сигнальный сервер.
// Если канал не поднялся, звонок завершается.
func (c *Client) accept(ctx context.Context, operator string) {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		c.logger.Warnw("Call accepted but no call was requested", "operatorId", operator)
		return
	}
	old := c.media
	c.media = nil
	c.state = Active
	c.operator = operator
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.closeMedia(old)
	c.logger.Infow("Call accepted", "operatorId", operator)
	if c.dial == nil {
		return
	}

	media, err := c.dial(ctx, operator)

	c.mu.Lock()
	current := c.gen == gen
	if err != nil {
		if current {
			c.reset()
		}
		c.mu.Unlock()
		c.logger.Errorw("Failed to start media, ending call", "operatorId", operator, "error", err)
		if !current {
			return
		}
		if err := c.sig.Send(ctx, signaling.Message{Type: signaling.TypeCallEnded}); err != nil {
			c.logger.Warnw("Не удалось отправить call_ended", "error", err)
		}
		return
	}
	if !current {
		c.mu.Unlock()
		c.logger.Infow("Call ended while media was starting", "operatorId", operator)
		c.closeMedia(media)
		return
	}
	c.media = media
	c.mu.Unlock()
}
