package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "/tmp/.pid", cfg.Registry.Root)
	require.Equal(t, time.Second, cfg.Registry.PollInterval)
	require.Equal(t, "posix", cfg.Shm.Backend)
	require.Equal(t, "/dev/shm", cfg.Shm.Dir)
	require.Equal(t, []string{"hdmi"}, cfg.Input.Exclude)
	require.Equal(t, 10*time.Second, cfg.Input.Reconnect)
	require.Equal(t, 500*time.Millisecond, cfg.Input.DoubleTapWindow)
	require.Equal(t, time.Second, cfg.Input.LongPress)
	require.Equal(t, []string{"call_client", "ocr_process", "earbud_input"}, cfg.Supervisor.Roles)
	require.True(t, cfg.Call.Media)
	require.Equal(t, "stun:stun.l.google.com:19302", cfg.Call.STUNServer)
	require.Equal(t, 30, cfg.Call.VideoFPS)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("REGISTRY_ROOT", "/run/eyewear")
	t.Setenv("REGISTRY_POLL_INTERVAL", "250ms")
	t.Setenv("INPUT_EXCLUDE", "hdmi;vc4")
	t.Setenv("OCR_BACKEND", "openai")
	t.Setenv("ROLES", "call_client;emulator")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "/run/eyewear", cfg.Registry.Root)
	require.Equal(t, 250*time.Millisecond, cfg.Registry.PollInterval)
	require.Equal(t, []string{"hdmi", "vc4"}, cfg.Input.Exclude)
	require.Equal(t, "openai", cfg.OCR.Backend)
	require.Equal(t, []string{"call_client", "emulator"}, cfg.Supervisor.Roles)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("SHM_BACKEND", "posix")
	cfg, err := Load([]string{
		"-shm-backend", "sysv",
		"-input-exclude", " hdmi ; ; dummy ",
		"-long-press-threshold", "1500ms",
		"-roles", "",
	})
	require.NoError(t, err)
	require.Equal(t, "sysv", cfg.Shm.Backend)
	require.Equal(t, []string{"hdmi", "dummy"}, cfg.Input.Exclude)
	require.Equal(t, 1500*time.Millisecond, cfg.Input.LongPress)
	require.Equal(t, Defaults().Supervisor.Roles, cfg.Supervisor.Roles)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"shm backend", []string{"-shm-backend", "tmpfs"}},
		{"ocr backend", []string{"-ocr-backend", "tesseract"}},
		{"camera backend", []string{"-camera-backend", "usb"}},
		{"poll interval", []string{"-registry-poll-interval", "1ms"}},
		{"long press", []string{"-long-press-threshold", "0s"}},
		{"video fps", []string{"-video-fps", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load([]string{"-no-such-flag"})
	require.Error(t, err)
}

func TestPrepareGoogleCredentials(t *testing.T) {
	cred := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(cred, []byte("{}"), 0o600))

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	cfg := Defaults()
	cfg.GoogleTTS.CredentialsPath = cred
	require.NoError(t, cfg.PrepareGoogleCredentials())
	require.Equal(t, cred, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, cfg.PrepareGoogleCredentials())
}
