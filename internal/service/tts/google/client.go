package google

import (
	"EyeWear/internal/config"
	"EyeWear/internal/service/audio/player"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
)

var ErrEmptyText = errors.New("google tts: empty text")

// Client озвучивает распознанный текст через Google Cloud Text-to-Speech.
// Клиент SDK создаётся при первом запросе и переиспользуется.
type Client struct {
	cfg    config.GoogleTTSConfig
	player player.Player
	logger *zap.SugaredLogger

	once   sync.Once
	sdk    *gctts.Client
	sdkErr error
}

func New(cfg config.GoogleTTSConfig, p player.Player, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{cfg: cfg, player: p, logger: logger}
}

func (c *Client) client(ctx context.Context) (*gctts.Client, error) {
	c.once.Do(func() {
		// контекст запроса не должен закрывать долгоживущего клиента
		c.sdk, c.sdkErr = gctts.NewClient(context.WithoutCancel(ctx))
	})
	return c.sdk, c.sdkErr
}

// buildRequest собирает запрос синтеза. Результат всегда MP3.
func buildRequest(cfg config.GoogleTTSConfig, text string) *ttspb.SynthesizeSpeechRequest {
	var input *ttspb.SynthesisInput
	if strings.EqualFold(strings.TrimSpace(cfg.InputType), "ssml") {
		input = &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Ssml{Ssml: text}}
	} else {
		input = &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}}
	}
	return &ttspb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: cfg.Language,
			Name:         cfg.Voice,
		},
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding: ttspb.AudioEncoding_MP3,
			SpeakingRate:  cfg.SpeakingRate,
			Pitch:         cfg.Pitch,
			VolumeGainDb:  cfg.VolumeGainDb,
		},
	}
}

// Speak синтезирует речь и проигрывает её.
func (c *Client) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	sdk, err := c.client(ctx)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := sdk.SynthesizeSpeech(ctx, buildRequest(c.cfg, text))
	if err != nil {
		return err
	}
	c.logger.Infow("Google TTS synthesize completed", "took", time.Since(started).String(), "chars", len(text))

	r := io.NopCloser(bytes.NewReader(resp.GetAudioContent()))
	return c.player.Play(ctx, "mp3", r)
}

// Voices возвращает голоса, доступные для языка lang (пусто — все языки).
func (c *Client) Voices(ctx context.Context, lang string) ([]*ttspb.Voice, error) {
	sdk, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := sdk.ListVoices(ctx, &ttspb.ListVoicesRequest{LanguageCode: lang})
	if err != nil {
		return nil, err
	}
	return resp.GetVoices(), nil
}

// Close освобождает клиента SDK.
func (c *Client) Close() error {
	if c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}
