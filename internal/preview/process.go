package preview

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jgirmay/FORGE_GO/pkg/logging"
)

// Port announcements in child output. Both heuristics are best-effort;
// a non-match just means the allocated port stays authoritative.
var (
	portAnnouncePattern = regexp.MustCompile(`(?i)\b(?:port|address|listening on|host|server at|endpoint)\b\s*[:=]?\s*(?:(?:[a-zA-Z0-9.-]+|\[[^\]]+\]):)?(\d{4,5})\b`)
	portURLPattern      = regexp.MustCompile(`(?i)(?:https?://)?(?:[a-zA-Z0-9.-]+|\[[^\]]+\]):(\d{4,5})\b`)
)

// extractPortFromLine pulls an announced port out of a log line
func extractPortFromLine(line string) (int, bool) {
	match := portAnnouncePattern.FindStringSubmatch(line)
	if match == nil {
		match = portURLPattern.FindStringSubmatch(line)
	}
	if match == nil {
		return 0, false
	}
	port, err := strconv.Atoi(match[1])
	if err != nil || port < 1024 || port > 65535 {
		return 0, false
	}
	return port, true
}

// Process owns one spawned preview child. Both output streams are
// drained asynchronously into the session's log buffer; the handle is
// exclusively owned by its session until reaped.
type Process struct {
	cmd          *exec.Cmd
	logs         *LogBuffer
	done         chan struct{}
	drains       sync.WaitGroup
	detectedPort int32

	mu       sync.Mutex
	exitCode *int
}

// Spawn starts the resolved command with both output streams piped.
// The child runs in its own process group so termination can reach any
// grandchildren (npm and friends fork).
func Spawn(spec *LaunchSpec, logs *LogBuffer) (*Process, error) {
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	p := &Process{
		cmd:  cmd,
		logs: logs,
		done: make(chan struct{}),
	}

	p.drains.Add(2)
	go p.drainStream(stdout, StreamStdout)
	go p.drainStream(stderr, StreamStderr)

	go p.reap()

	return p, nil
}

// drainStream forwards decoded lines into the log buffer until the pipe
// closes. Read errors are logged once, never retried.
func (p *Process) drainStream(pipe io.ReadCloser, stream string) {
	defer p.drains.Done()

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.logs.Append(stream, line)
		if atomic.LoadInt32(&p.detectedPort) == 0 {
			if port, ok := extractPortFromLine(line); ok {
				atomic.StoreInt32(&p.detectedPort, int32(port))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logging.Warn("preview stream read error",
			zap.String("stream", stream),
			zap.Int("pid", p.PID()),
			zap.Error(err))
	}
}

// reap waits for the drains to finish, collects the exit status and
// closes the done channel.
func (p *Process) reap() {
	p.drains.Wait()

	err := p.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
	}

	p.mu.Lock()
	p.exitCode = &code
	p.mu.Unlock()
	close(p.done)
}

// Alive is a non-blocking liveness poll
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done exposes process exit for select-based waits
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code once the process has been reaped
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode == nil {
		return 0, false
	}
	return *p.exitCode, true
}

// PID returns the child's process id
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// DetectedPort returns a port announced in the child's output, 0 if none
func (p *Process) DetectedPort() int {
	return int(atomic.LoadInt32(&p.detectedPort))
}

// Terminate stops the child. Graceful termination signals the process
// group with SIGTERM and waits up to gracePeriod before escalating to
// SIGKILL; the forceful path and the escalation both wait bounded so no
// caller blocks indefinitely on an unresponsive child.
func (p *Process) Terminate(graceful bool, gracePeriod time.Duration) {
	if !p.Alive() {
		return
	}

	if graceful {
		p.signalGroup(syscall.SIGTERM)
		select {
		case <-p.done:
			return
		case <-time.After(gracePeriod):
			logging.Warn("preview process ignored SIGTERM, escalating to SIGKILL",
				zap.Int("pid", p.PID()))
		}
	}

	p.signalGroup(syscall.SIGKILL)
	select {
	case <-p.done:
	case <-time.After(gracePeriod):
		logging.Error("preview process did not exit after SIGKILL",
			zap.Int("pid", p.PID()))
	}
}

// signalGroup signals the whole process group, falling back to the
// direct pid when the group is gone.
func (p *Process) signalGroup(sig syscall.Signal) {
	pid := p.PID()
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = p.cmd.Process.Signal(sig)
	}
}
