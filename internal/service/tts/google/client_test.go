package google

import (
	"EyeWear/internal/config"
	"context"
	"testing"

	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	cfg := config.Defaults().GoogleTTS
	req := buildRequest(cfg, "হ্যালো")
	require.Equal(t, "হ্যালো", req.GetInput().GetText())
	require.Equal(t, cfg.Language, req.GetVoice().GetLanguageCode())
	require.Equal(t, ttspb.AudioEncoding_MP3, req.GetAudioConfig().GetAudioEncoding())

	cfg.InputType = " SSML "
	req = buildRequest(cfg, "<speak>hi</speak>")
	require.Equal(t, "<speak>hi</speak>", req.GetInput().GetSsml())
	require.Empty(t, req.GetInput().GetText())
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	c := New(config.Defaults().GoogleTTS, nil, nil)
	require.ErrorIs(t, c.Speak(context.Background(), "  \n"), ErrEmptyText)
	require.NoError(t, c.Close())
}
