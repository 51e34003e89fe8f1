package mailbox

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	mb, err := Create("call_signal", WithDir(t.TempDir()), WithOwner())
	require.NoError(t, err)
	defer mb.Close()

	require.Equal(t, int32(0), mb.Read())
	for _, v := range []int32{1, 3, -7, 2147483647, 0} {
		require.NoError(t, mb.Write(v))
		require.Equal(t, v, mb.Read())
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	owner, err := Create("ocr_signal", WithDir(dir), WithOwner())
	require.NoError(t, err)
	defer owner.Close()

	peer, err := Create("ocr_signal", WithDir(dir))
	require.NoError(t, err)

	require.NoError(t, owner.Write(4))
	require.Equal(t, int32(4), peer.Read())

	require.NoError(t, peer.Write(5))
	require.Equal(t, int32(5), owner.Read())

	// не-владелец только отключается
	require.NoError(t, peer.Close())
	require.FileExists(t, filepath.Join(dir, "ocr_signal"))
	require.Equal(t, int32(5), owner.Read())
}

func TestOwnerCloseUnlinks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	mb, err := Create("ocr_queue_count", WithDir(dir), WithOwner())
	require.NoError(t, err)
	require.True(t, mb.Owner())
	require.NoError(t, mb.Close())
	require.NoFileExists(t, filepath.Join(dir, "ocr_queue_count"))

	require.NoError(t, mb.Close())
	require.ErrorIs(t, mb.Write(1), ErrClosed)
	require.Equal(t, int32(0), mb.Read())
	_, err = mb.Swap(0)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSegmentLayoutIsNativeInt32(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	mb, err := Create("signal_test", WithDir(dir), WithOwner())
	require.NoError(t, err)
	defer mb.Close()
	require.NoError(t, mb.Write(3))

	raw, err := os.ReadFile(filepath.Join(dir, "signal_test"))
	require.NoError(t, err)
	require.Len(t, raw, WordSize)
	require.Equal(t, int32(3), int32(binary.NativeEndian.Uint32(raw)))

	// запись со стороны другого процесса через файл видна в отображении
	buf := make([]byte, WordSize)
	binary.NativeEndian.PutUint32(buf, uint32(2))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signal_test"), buf, 0o666))
	require.Equal(t, int32(2), mb.Read())
}

func TestSwapResets(t *testing.T) {
	t.Parallel()
	mb, err := Create("call_signal", WithDir(t.TempDir()), WithOwner())
	require.NoError(t, err)
	defer mb.Close()

	require.NoError(t, mb.Write(2))
	prev, err := mb.Swap(0)
	require.NoError(t, err)
	require.Equal(t, int32(2), prev)
	require.Equal(t, int32(0), mb.Read())
}

func TestConcurrentWritesNeverTear(t *testing.T) {
	t.Parallel()
	mb, err := Create("tear", WithDir(t.TempDir()), WithOwner())
	require.NoError(t, err)
	defer mb.Close()

	values := []int32{0x01010101, 0x7f7f7f7f}
	var wg sync.WaitGroup
	for _, v := range values {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			for range 1000 {
				_ = mb.Write(v)
			}
		}(v)
	}
	for range 1000 {
		got := mb.Read()
		require.Contains(t, []int32{0, values[0], values[1]}, got)
	}
	wg.Wait()
}

func TestInvalidNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "a/b", ".."} {
		_, err := Create(name, WithDir(t.TempDir()))
		require.ErrorIs(t, err, ErrInvalidName)
	}
}

func TestParseBackend(t *testing.T) {
	t.Parallel()
	b, err := ParseBackend("")
	require.NoError(t, err)
	require.Equal(t, BackendPOSIX, b)

	b, err = ParseBackend("SysV")
	require.NoError(t, err)
	require.Equal(t, BackendSysV, b)

	_, err = ParseBackend("mqueue")
	require.Error(t, err)
}

func TestSetEnsure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewSet(WithDir(dir), WithOwner())

	a, err := s.Ensure("call_signal")
	require.NoError(t, err)
	b, err := s.Ensure("call_signal")
	require.NoError(t, err)
	require.Same(t, a, b)

	require.NoError(t, s.Close())
	require.NoFileExists(t, filepath.Join(dir, "call_signal"))
}

func TestSysVBackend(t *testing.T) {
	name := "eyewear_sysv_test"
	owner, err := Create(name, WithBackend(BackendSysV), WithOwner())
	if err != nil {
		t.Skipf("sysv shared memory unavailable: %v", err)
	}
	defer owner.Close()

	peer, err := Create(name, WithBackend(BackendSysV))
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, owner.Write(4))
	require.Equal(t, int32(4), peer.Read())
}
