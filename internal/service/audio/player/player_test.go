package player

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/stretchr/testify/require"
)

func TestDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Take(800, beep.Silence(-1)), format))
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	s, got, err := Decode("WAV", in)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, beep.SampleRate(8000), got.SampleRate)
	require.Equal(t, 800, s.Len())
}

func TestDecodeUnsupported(t *testing.T) {
	_, _, err := Decode("ogg", io.NopCloser(strings.NewReader("")))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	// неподдерживаемый формат отклоняется до инициализации динамика
	err = New().Play(context.Background(), "flac", io.NopCloser(strings.NewReader("")))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPausedPersists(t *testing.T) {
	p := NewWithVolume(-3)
	require.False(t, p.Paused())
	p.SetPaused(true)
	require.True(t, p.Paused())
	p.SetPaused(false)
	require.False(t, p.Paused())
}
