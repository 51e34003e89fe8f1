package rtc

import (
	"EyeWear/internal/config"
	"EyeWear/internal/service/signaling"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// Sender — сигнальный канал (signaling.Client).
type Sender interface {
	Send(ctx context.Context, msg signaling.Message) error
}

// Peer — видеоканал одного звонка. Устройство делает offer, оператор
// отвечает answer, кандидаты ICE идут в обе стороны через сигнальный сервер.
type Peer struct {
	logger *zap.SugaredLogger
	pc     *webrtc.PeerConnection
	sig    Sender
	to     string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	offerSent bool
	local     []webrtc.ICECandidateInit
	remoteSet bool
	remote    []webrtc.ICECandidateInit
}

// ICEServers переводит адрес STUN в формат pion (stun://host → stun:host).
func ICEServers(stun string) []webrtc.ICEServer {
	stun = strings.TrimSpace(stun)
	if stun == "" {
		return nil
	}
	stun = strings.Replace(stun, "stun://", "stun:", 1)
	return []webrtc.ICEServer{{URLs: []string{stun}}}
}

// Dial создаёт соединение с видеодорожкой H.264, отправляет offer оператору
// to и запускает src. src может быть nil: тогда дорожка пустая.
func Dial(ctx context.Context, cfg config.CallConfig, src Source, sig Sender, to string, logger *zap.SugaredLogger) (*Peer, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: ICEServers(cfg.STUNServer)})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video",
		"eyewear",
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}
	rtpSender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add video track: %w", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Peer{logger: logger, pc: pc, sig: sig, to: to, ctx: pctx, cancel: cancel, done: make(chan struct{})}

	// RTCP нужно вычитывать, иначе не работают interceptors
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := rtpSender.Read(buf); err != nil {
				return
			}
		}
	}()

	pc.OnICECandidate(p.onLocalCandidate)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Infow("Peer connection state changed", "state", s.String(), "operatorId", to)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		p.abort()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		p.abort()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	if err := sig.Send(pctx, signaling.Message{Type: signaling.TypeOffer, SDP: offer.SDP, To: to}); err != nil {
		p.abort()
		return nil, fmt.Errorf("send offer: %w", err)
	}
	logger.Infow("Offer sent", "operatorId", to)
	p.flushLocal()

	go func() {
		defer close(p.done)
		if src == nil {
			return
		}
		if err := src.Stream(pctx, track); err != nil && pctx.Err() == nil {
			logger.Errorw("Video stream stopped", "error", err)
		}
	}()
	return p, nil
}

func (p *Peer) abort() {
	p.cancel()
	_ = p.pc.Close()
	close(p.done)
}

// onLocalCandidate пересылает кандидатов оператору; до отправки offer они копятся.
func (p *Peer) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	p.mu.Lock()
	if !p.offerSent {
		p.local = append(p.local, init)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.sendCandidate(init)
}

func (p *Peer) flushLocal() {
	p.mu.Lock()
	p.offerSent = true
	pending := p.local
	p.local = nil
	p.mu.Unlock()
	for _, c := range pending {
		p.sendCandidate(c)
	}
}

func (p *Peer) sendCandidate(c webrtc.ICECandidateInit) {
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := p.sig.Send(p.ctx, signaling.Message{Type: signaling.TypeCandidate, Candidate: raw, To: p.to}); err != nil {
		p.logger.Warnw("Failed to send ICE candidate", "error", err)
	}
}

// Answer применяет ответ оператора и кандидатов, пришедших раньше него.
func (p *Peer) Answer(sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.mu.Lock()
	p.remoteSet = true
	pending := p.remote
	p.remote = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.logger.Warnw("Failed to add ICE candidate", "error", err)
		}
	}
	p.logger.Infow("Remote description set", "operatorId", p.to, "candidates", len(pending))
	return nil
}

// AddCandidate добавляет кандидата оператора {candidate, sdpMLineIndex}.
func (p *Peer) AddCandidate(raw json.RawMessage) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if c.Candidate == "" {
		return nil
	}
	p.mu.Lock()
	if !p.remoteSet {
		p.remote = append(p.remote, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(c)
}

// Pending — сколько кандидатов оператора ждут answer.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remote)
}

// Close останавливает видео и закрывает соединение. Повторные вызовы безопасны.
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		err = p.pc.Close()
		<-p.done
		p.logger.Infow("Peer connection closed", "operatorId", p.to)
	})
	return err
}
