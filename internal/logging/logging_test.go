package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role.log")
	logger, sync, err := New(false, true, "ocr_process", path)
	require.NoError(t, err)
	logger.Debugw("hidden")
	logger.Infow("Role started", "pid", 42)
	sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"logger":"ocr_process"`)
	require.Contains(t, string(data), `"msg":"Role started"`)
	require.NotContains(t, string(data), "hidden")
}

func TestDebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, sync, err := New(true, true, "earbud_input", path)
	require.NoError(t, err)
	logger.Debugw("Press ignored")
	sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Press ignored")
}
