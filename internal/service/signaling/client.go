package signaling

import (
	"EyeWear/internal/config"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("signaling: not connected")

const (
	pingInterval = 20 * time.Second
	pongWait     = 50 * time.Second
	writeWait    = 10 * time.Second
)

// Типы сообщений сигнального сервера.
const (
	TypeAuthenticate     = "authenticate"
	TypeAuthenticated    = "authenticated"
	TypeRequestCall      = "request_call"
	TypeCallQueued       = "call_queued"
	TypeCallAccepted     = "call_accepted"
	TypeCallEnded        = "call_ended"
	TypePeerDisconnected = "peer_disconnected"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeCandidate        = "candidate"
	TypeError            = "error"
)

// Message — JSON-сообщение сигнального канала.
type Message struct {
	Type       string          `json:"type"`
	Token      string          `json:"token,omitempty"`
	DeviceID   string          `json:"deviceId,omitempty"`
	Position   int             `json:"position,omitempty"`
	OperatorID string          `json:"operatorId,omitempty"`
	Message    string          `json:"message,omitempty"`
	SDP        string          `json:"sdp,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	To         string          `json:"to,omitempty"`
}

// TokenSource выдаёт токен для сообщения authenticate.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken — заранее выданный токен устройства.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client держит соединение с сигнальным сервером и переподключается при обрыве.
type Client struct {
	logger    *zap.SugaredLogger
	url       string
	tokens    TokenSource
	reconnect time.Duration
	dialer    websocket.Dialer

	events    chan Message
	connected atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg config.CallConfig, tokens TokenSource, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	reconnect := cfg.Reconnect
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &Client{
		logger:    logger,
		url:       cfg.SignalingServer,
		tokens:    tokens,
		reconnect: reconnect,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		events: make(chan Message, 32),
	}
}

// Events — входящие сообщения сервера.
func (c *Client) Events() <-chan Message { return c.events }

func (c *Client) Connected() bool { return c.connected.Load() }

// Run подключается, аутентифицируется и читает сообщения до отмены ctx.
// После обрыва ждёт reconnect и повторяет.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		c.logger.Warnw("Signaling connection lost", "url", c.url, "error", err, "retryIn", c.reconnect.String())
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(c.reconnect):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: HTTP %d: %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer c.drop(conn)

	if err := c.Send(ctx, Message{Type: TypeAuthenticate, Token: token}); err != nil {
		return err
	}
	c.connected.Store(true)
	c.logger.Infow("Signaling connected", "url", c.url)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.keepalive(sessCtx, conn)
	go func() {
		<-sessCtx.Done()
		// разблокирует ReadMessage
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("Некорректное сообщение сигнального сервера", "error", err, "raw", string(data))
			continue
		}
		c.logger.Debugw("Signaling message received", "type", msg.Type)
		select {
		case c.events <- msg:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) drop(conn *websocket.Conn) {
	c.connected.Store(false)
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// Send пишет сообщение в текущее соединение.
func (c *Client) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}
