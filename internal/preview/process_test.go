package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPortFromLine(t *testing.T) {
	cases := []struct {
		line string
		port int
		ok   bool
	}{
		{"* Running on http://127.0.0.1:5000", 5000, true},
		{"Server listening on port 8080", 8080, true},
		{"Local:   http://localhost:3000/", 3000, true},
		{"You can now view app in the browser.", 0, false},
		{"port: 8501", 8501, true},
		{"address = 0.0.0.0:9000", 9000, true},
		{"listening on [::]:8000", 8000, true},
		{"took 123 ms", 0, false},
		{"port 80", 0, false},
	}

	for _, tc := range cases {
		port, ok := extractPortFromLine(tc.line)
		assert.Equal(t, tc.ok, ok, "line: %q", tc.line)
		if tc.ok {
			assert.Equal(t, tc.port, port, "line: %q", tc.line)
		}
	}
}

func shellSpec(script string, grace time.Duration) *LaunchSpec {
	return &LaunchSpec{
		Argv:  []string{"/bin/sh", "-c", script},
		Dir:   "/tmp",
		Grace: grace,
	}
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit in time")
	}
}

func TestSpawnCapturesBothStreams(t *testing.T) {
	logs := NewLogBuffer(10)
	proc, err := Spawn(shellSpec(`echo out-line; echo err-line >&2`, time.Second), logs)
	require.NoError(t, err)
	waitDone(t, proc)

	var stdout, stderr []string
	for _, entry := range logs.Snapshot() {
		switch entry.Stream {
		case StreamStdout:
			stdout = append(stdout, entry.Line)
		case StreamStderr:
			stderr = append(stderr, entry.Line)
		}
	}
	assert.Equal(t, []string{"out-line"}, stdout)
	assert.Equal(t, []string{"err-line"}, stderr)
}

func TestSpawnReportsExitCode(t *testing.T) {
	logs := NewLogBuffer(10)
	proc, err := Spawn(shellSpec(`exit 3`, time.Second), logs)
	require.NoError(t, err)
	waitDone(t, proc)

	code, ok := proc.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 3, code)
	assert.False(t, proc.Alive())
}

func TestSpawnExitCodeUnavailableWhileRunning(t *testing.T) {
	logs := NewLogBuffer(10)
	proc, err := Spawn(shellSpec(`sleep 30`, time.Second), logs)
	require.NoError(t, err)
	defer proc.Terminate(false, time.Second)

	assert.True(t, proc.Alive())
	_, ok := proc.ExitCode()
	assert.False(t, ok)
	assert.Greater(t, proc.PID(), 0)
}

func TestSpawnDetectsAnnouncedPort(t *testing.T) {
	logs := NewLogBuffer(10)
	proc, err := Spawn(shellSpec(`echo "Running on http://127.0.0.1:5000"`, time.Second), logs)
	require.NoError(t, err)
	waitDone(t, proc)

	assert.Equal(t, 5000, proc.DetectedPort())
}

func TestSpawnBadCommand(t *testing.T) {
	logs := NewLogBuffer(10)
	_, err := Spawn(&LaunchSpec{Argv: []string{"/nonexistent/binary"}, Dir: "/tmp"}, logs)
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestTerminateGraceful(t *testing.T) {
	logs := NewLogBuffer(10)
	proc, err := Spawn(shellSpec(`sleep 30`, time.Second), logs)
	require.NoError(t, err)

	start := time.Now()
	proc.Terminate(true, 2*time.Second)
	assert.False(t, proc.Alive())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	logs := NewLogBuffer(10)
	// The trap swallows SIGTERM so only SIGKILL can end it
	proc, err := Spawn(shellSpec(`trap "" TERM; sleep 30 & wait`, time.Second), logs)
	require.NoError(t, err)

	// Give the shell a moment to install the trap
	time.Sleep(100 * time.Millisecond)

	proc.Terminate(true, 200*time.Millisecond)
	waitDone(t, proc)
	assert.False(t, proc.Alive())
}

func TestTerminateIdempotent(t *testing.T) {
	logs := NewLogBuffer(10)
	proc, err := Spawn(shellSpec(`exit 0`, time.Second), logs)
	require.NoError(t, err)
	waitDone(t, proc)

	// Terminating a reaped process is a no-op
	proc.Terminate(true, time.Second)
	proc.Terminate(false, time.Second)
}

func TestSpawnPassesEnv(t *testing.T) {
	logs := NewLogBuffer(10)
	spec := shellSpec(`echo "PORT=$PORT"`, time.Second)
	spec.Env = []string{"PORT=8123"}
	proc, err := Spawn(spec, logs)
	require.NoError(t, err)
	waitDone(t, proc)

	entries := logs.Snapshot()
	require.NotEmpty(t, entries)
	assert.Equal(t, "PORT=8123", entries[0].Line)
}
