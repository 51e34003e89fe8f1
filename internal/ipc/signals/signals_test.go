package signals

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitWakeup(t *testing.T, r *Receiver, want Channel) {
	t.Helper()
	select {
	case got := <-r.Wakeups():
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("no wakeup for %s", want)
	}
}

func TestRaiseSelf(t *testing.T) {
	r := Install(Primary, Secondary)
	defer r.Stop()

	require.NoError(t, Raise(os.Getpid(), Primary))
	waitWakeup(t, r, Primary)
	r.Ack(Primary)

	require.NoError(t, Raise(os.Getpid(), Secondary))
	waitWakeup(t, r, Secondary)
	r.Ack(Secondary)
}

func TestWakeupsCoalesceUntilAck(t *testing.T) {
	r := Install(Primary)
	defer r.Stop()

	require.NoError(t, Raise(os.Getpid(), Primary))
	waitWakeup(t, r, Primary)

	// без Ack повторные уведомления схлопываются
	require.NoError(t, Raise(os.Getpid(), Primary))
	require.NoError(t, Raise(os.Getpid(), Primary))
	select {
	case ch := <-r.Wakeups():
		t.Fatalf("unexpected wakeup %s before ack", ch)
	case <-time.After(100 * time.Millisecond):
	}

	r.Ack(Primary)
	require.NoError(t, Raise(os.Getpid(), Primary))
	waitWakeup(t, r, Primary)
	r.Ack(Primary)
}

func TestRaiseDeadProcess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot spawn helper process: %v", err)
	}
	pid := cmd.ProcessState.Pid()

	err := Raise(pid, Primary)
	require.ErrorIs(t, err, ErrDestinationGone)
	require.False(t, Alive(pid))
}

func TestRaiseInvalid(t *testing.T) {
	require.ErrorIs(t, Raise(0, Primary), ErrDestinationGone)
	require.ErrorIs(t, Raise(os.Getpid(), Channel(7)), ErrUnknownChannel)
}

func TestAliveSelf(t *testing.T) {
	require.True(t, Alive(os.Getpid()))
	require.False(t, Alive(-1))
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{"usr1", Primary, false},
		{"SIGUSR2", Secondary, false},
		{"2", Secondary, false},
		{"hup", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChannel(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownChannel)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInstallWithoutChannelsSubscribesNothing(t *testing.T) {
	r := Install(Channel(42))
	defer r.Stop()
	require.Empty(t, r.sigs)
	require.Empty(t, r.pending)

	require.NoError(t, Raise(os.Getpid(), Primary))
	select {
	case ch := <-r.Wakeups():
		t.Fatalf("unexpected wakeup %s", ch)
	case <-time.After(100 * time.Millisecond):
	}
	require.Zero(t, len(r.sigCh))
}
