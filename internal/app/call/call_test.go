package call

import (
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/service/signaling"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSignaler struct {
	mu     sync.Mutex
	sent   []string
	err    error
	events chan signaling.Message
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{events: make(chan signaling.Message, 8)}
}

func (f *fakeSignaler) Send(_ context.Context, msg signaling.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg.Type)
	return nil
}

func (f *fakeSignaler) Events() <-chan signaling.Message { return f.events }

func (f *fakeSignaler) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestCallLifecycle(t *testing.T) {
	sig := newFakeSignaler()
	c := New(sig, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.Handle(ctx, int32(protocol.ToggleMute))
	st, muted := c.Snapshot()
	require.Equal(t, Idle, st)
	require.False(t, muted)

	c.Handle(ctx, int32(protocol.StartCall))
	st, _ = c.Snapshot()
	require.Equal(t, Requested, st)

	c.Handle(ctx, int32(protocol.StartCall))
	require.Equal(t, []string{signaling.TypeRequestCall}, sig.types())

	sig.events <- signaling.Message{Type: signaling.TypeCallQueued, Position: 1}
	sig.events <- signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op-7"}
	require.Eventually(t, func() bool { st, _ := c.Snapshot(); return st == Active }, time.Second, 5*time.Millisecond)

	c.Handle(ctx, int32(protocol.ToggleMute))
	_, muted = c.Snapshot()
	require.True(t, muted)

	c.Handle(ctx, int32(protocol.EndCall))
	st, muted = c.Snapshot()
	require.Equal(t, Idle, st)
	require.False(t, muted)
	require.Equal(t, []string{signaling.TypeRequestCall, signaling.TypeCallEnded}, sig.types())

	c.Handle(ctx, int32(protocol.EndCall))
	require.Len(t, sig.types(), 2)
}

func TestPeerDisconnectResets(t *testing.T) {
	sig := newFakeSignaler()
	c := New(sig, nil, nil)
	c.Handle(context.Background(), int32(protocol.StartCall))
	c.onMessage(context.Background(), signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op"})
	c.Handle(context.Background(), int32(protocol.ToggleMute))

	c.onMessage(context.Background(), signaling.Message{Type: signaling.TypePeerDisconnected})
	st, muted := c.Snapshot()
	require.Equal(t, Idle, st)
	require.False(t, muted)
}

func TestAcceptWithoutRequestIgnored(t *testing.T) {
	c := New(newFakeSignaler(), nil, nil)
	c.onMessage(context.Background(), signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op"})
	st, _ := c.Snapshot()
	require.Equal(t, Idle, st)
}

func TestRequestFailureKeepsIdle(t *testing.T) {
	sig := newFakeSignaler()
	sig.err = errors.New("not connected")
	c := New(sig, nil, nil)
	c.Handle(context.Background(), int32(protocol.StartCall))
	st, _ := c.Snapshot()
	require.Equal(t, Idle, st)

	c.Handle(context.Background(), 99)
	st, _ = c.Snapshot()
	require.Equal(t, Idle, st)
}

type fakeMedia struct {
	mu         sync.Mutex
	answer     string
	candidates []string
	closed     int
}

func (m *fakeMedia) Answer(sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = sdp
	return nil
}

func (m *fakeMedia) AddCandidate(raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, string(raw))
	return nil
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func TestMediaNegotiation(t *testing.T) {
	sig := newFakeSignaler()
	media := &fakeMedia{}
	var dialed []string
	dial := func(_ context.Context, op string) (Media, error) {
		dialed = append(dialed, op)
		return media, nil
	}
	c := New(sig, dial, nil)
	ctx := context.Background()

	// до принятия звонка answer и кандидаты некуда применить
	c.onMessage(ctx, signaling.Message{Type: signaling.TypeAnswer, SDP: "v=0"})
	require.Empty(t, media.answer)

	c.Handle(ctx, int32(protocol.StartCall))
	c.onMessage(ctx, signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op-3"})
	require.Equal(t, []string{"op-3"}, dialed)

	c.onMessage(ctx, signaling.Message{Type: signaling.TypeAnswer, SDP: "v=0"})
	c.onMessage(ctx, signaling.Message{Type: signaling.TypeCandidate, Candidate: json.RawMessage(`{"candidate":"c1"}`)})
	require.Equal(t, "v=0", media.answer)
	require.Equal(t, []string{`{"candidate":"c1"}`}, media.candidates)

	c.Handle(ctx, int32(protocol.EndCall))
	require.Equal(t, 1, media.closed)
	c.onMessage(ctx, signaling.Message{Type: signaling.TypePeerDisconnected})
	require.Equal(t, 1, media.closed)
}

func TestMediaFailureEndsCall(t *testing.T) {
	sig := newFakeSignaler()
	dial := func(context.Context, string) (Media, error) { return nil, errors.New("no camera") }
	c := New(sig, dial, nil)
	ctx := context.Background()

	c.Handle(ctx, int32(protocol.StartCall))
	c.onMessage(ctx, signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op"})
	st, _ := c.Snapshot()
	require.Equal(t, Idle, st)
	require.Equal(t, []string{signaling.TypeRequestCall, signaling.TypeCallEnded}, sig.types())
}

func TestPeerDisconnectClosesMedia(t *testing.T) {
	media := &fakeMedia{}
	c := New(newFakeSignaler(), func(context.Context, string) (Media, error) { return media, nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Handle(ctx, int32(protocol.StartCall))
	c.onMessage(ctx, signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op"})
	c.onMessage(ctx, signaling.Message{Type: signaling.TypePeerDisconnected})
	require.Equal(t, 1, media.closed)

	// Run закрывает канал, оставшийся открытым на выходе
	c.Handle(ctx, int32(protocol.StartCall))
	c.onMessage(ctx, signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op"})
	cancel()
	require.ErrorIs(t, c.Run(ctx), context.Canceled)
	require.Equal(t, 2, media.closed)
}

func TestHangUpDuringSlowDial(t *testing.T) {
	sig := newFakeSignaler()
	media := &fakeMedia{}
	dialing := make(chan struct{})
	release := make(chan struct{})
	dial := func(context.Context, string) (Media, error) {
		close(dialing)
		<-release
		return media, nil
	}
	c := New(sig, dial, nil)
	ctx := context.Background()

	c.Handle(ctx, int32(protocol.StartCall))
	accepted := make(chan struct{})
	go func() {
		c.onMessage(ctx, signaling.Message{Type: signaling.TypeCallAccepted, OperatorID: "op-9"})
		close(accepted)
	}()
	<-dialing

	// команды из ящика не ждут, пока поднимается видеоканал
	handled := make(chan struct{})
	go func() {
		c.Handle(ctx, int32(protocol.ToggleMute))
		c.Handle(ctx, int32(protocol.EndCall))
		close(handled)
	}()
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked by dial")
	}

	close(release)
	<-accepted
	st, muted := c.Snapshot()
	require.Equal(t, Idle, st)
	require.False(t, muted)
	require.Equal(t, 1, media.closed)
	require.Equal(t, []string{signaling.TypeRequestCall, signaling.TypeCallEnded}, sig.types())
}
