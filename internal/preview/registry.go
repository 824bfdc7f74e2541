package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jgirmay/FORGE_GO/pkg/logging"
)

// RegistryConfig carries the orchestrator's tunables
type RegistryConfig struct {
	PortRangeStart  int
	PortRangeEnd    int
	ExcludedPorts   []int
	Resolver        ResolverConfig
	Prepare         PrepareConfig
	LogBufferSize   int
	TerminationWait time.Duration
	Suggester       PatchSuggester
	Recorder        EventRecorder
	Metrics         *Metrics
}

// Registry is the thread-safe session table and the entry point for
// start/stop/restart/status. The registry mutex guards only the map;
// per-session locks order operations on the same session id while
// different sessions proceed independently.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	locks    *sessionLocks

	ports     *PortAllocator
	detector  *Detector
	preparer  *Preparer
	resolver  *Resolver
	suggester PatchSuggester
	recorder  EventRecorder
	metrics   *Metrics

	logBufferSize   int
	terminationWait time.Duration
}

// NewRegistry creates a session registry with its port allocator,
// detector and resolver wired from the config.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.PortRangeStart == 0 {
		cfg.PortRangeStart = 8000
	}
	if cfg.PortRangeEnd == 0 {
		cfg.PortRangeEnd = 8999
	}
	if cfg.LogBufferSize == 0 {
		cfg.LogBufferSize = 2000
	}
	if cfg.TerminationWait == 0 {
		cfg.TerminationWait = 5 * time.Second
	}
	if cfg.Prepare.PythonBin == "" {
		cfg.Prepare.PythonBin = cfg.Resolver.PythonBin
	}

	return &Registry{
		sessions:        make(map[string]*Session),
		locks:           newSessionLocks(),
		ports:           NewPortAllocator(cfg.PortRangeStart, cfg.PortRangeEnd, cfg.ExcludedPorts...),
		detector:        NewDetector(),
		preparer:        NewPreparer(cfg.Prepare),
		resolver:        NewResolver(cfg.Resolver),
		suggester:       cfg.Suggester,
		recorder:        cfg.Recorder,
		metrics:         cfg.Metrics,
		logBufferSize:   cfg.LogBufferSize,
		terminationWait: cfg.TerminationWait,
	}
}

// Ports exposes the allocator for orphan reaping and inspection
func (r *Registry) Ports() *PortAllocator {
	return r.ports
}

// Session returns the tracked session for id, nil if never seen
func (r *Registry) Session(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// SessionIDs lists every tracked session id
func (r *Registry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Start launches a preview for the project in projectDir under the
// given session id (one is generated when empty). A session that is
// already running is fully stopped first. On a premature exit during
// the grace window exactly one auto-patch retry is attempted; every
// other failure kind is terminal for the call.
func (r *Registry) Start(ctx context.Context, projectDir, sessionID string) (*StartResult, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	lock := r.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	begun := time.Now()
	defer func() { r.metrics.recordStartDuration(time.Since(begun)) }()
	r.metrics.recordStart()

	s := r.getOrCreate(sessionID, projectDir)
	if s.proc != nil && s.proc.Alive() {
		r.stopProcess(s, "stopping previous process before restart")
	}

	s.ProjectDir = projectDir
	s.Status = StatusStarting
	s.PatchAttempted = false
	s.ExitCode = nil
	// Reset in place: streaming readers hold the buffer pointer, so it
	// is never replaced over a session's lifetime.
	s.logs.Reset()
	s.logs.Append(StreamSystem, fmt.Sprintf("starting preview for %s", projectDir))

	log := logging.With(zap.String("session_id", sessionID), zap.String("project_dir", projectDir))

	// Bounded retry: the original attempt plus at most one patched
	// retry. Only a premature exit is worth patching; detection,
	// resolution, port and spawn failures abort immediately.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		failureText, err := r.launchOnce(s)
		if err == nil {
			s.Status = StatusRunning
			r.metrics.recordRunning(1)
			if s.PatchAttempted {
				r.metrics.recordPatchSuccess()
			}
			url := r.urlFor(s)
			log.Info("preview running",
				zap.String("type", string(s.ProjectType)),
				zap.Int("port", s.Port),
				zap.Int("pid", s.PID))
			r.recordEvent(s, "started", url)
			return &StartResult{
				SessionID:   s.ID,
				Status:      StatusRunning,
				ProjectType: s.ProjectType,
				URL:         url,
				PID:         s.PID,
				Logs:        s.logs.Snapshot(),
				Message:     "application started",
			}, nil
		}

		lastErr = err
		if !errors.Is(err, ErrPrematureExit) {
			break
		}
		r.metrics.recordPrematureExit()
		if s.PatchAttempted {
			break
		}
		if !r.tryAutoPatch(ctx, s, failureText) {
			break
		}
	}

	s.Status = StatusFailed
	s.proc = nil
	r.ports.Release(s.ID)
	r.metrics.recordFailure(FailureKind(lastErr))
	log.Warn("preview start failed", zap.Error(lastErr))
	r.recordEvent(s, "failed", lastErr.Error())

	return &StartResult{
		SessionID:   s.ID,
		Status:      StatusFailed,
		ProjectType: s.ProjectType,
		Logs:        s.logs.Snapshot(),
		Message:     lastErr.Error(),
	}, lastErr
}

// launchOnce runs one detect/resolve/allocate/spawn cycle and waits the
// type-specific grace period. On premature exit it returns the captured
// failure text for the auto-patch heuristic.
func (r *Registry) launchOnce(s *Session) (string, error) {
	det := r.detector.Detect(s.ProjectDir)
	if det.Type == TypeUnknown {
		return "", fmt.Errorf("%w: %s", ErrDetection, s.ProjectDir)
	}
	s.ProjectType = det.Type
	if det.Multi() {
		s.logs.Append(StreamSystem, fmt.Sprintf("composite project detected: frontend=%s backend=%s", det.Frontend, det.Backend))
	}

	if err := r.preparer.Prepare(s.ProjectDir, det.Type, s.logs); err != nil {
		return "", err
	}

	port, err := r.ports.Allocate(s.ID)
	if err != nil {
		return "", err
	}
	r.metrics.recordAllocatedPorts(len(r.ports.Reserved()))

	spec, err := r.resolver.Resolve(s.ProjectDir, det.Type, port)
	if err != nil {
		r.ports.Release(s.ID)
		return "", err
	}
	s.logs.Append(StreamSystem, "launch command: "+strings.Join(spec.Argv, " "))

	proc, err := Spawn(spec, s.logs)
	if err != nil {
		r.ports.Release(s.ID)
		return "", err
	}
	s.proc = proc
	s.Port = port
	s.PID = proc.PID()
	s.StartTime = time.Now()

	// Fixed grace wait, cut short if the process dies earlier. This is
	// a timeout, not a readiness probe; slow starters past the grace
	// window are reported as running on trust.
	select {
	case <-proc.Done():
	case <-time.After(spec.Grace):
	}

	if proc.Alive() {
		return "", nil
	}

	code, _ := proc.ExitCode()
	s.ExitCode = &code
	s.proc = nil
	r.ports.Release(s.ID)
	s.logs.Append(StreamSystem, fmt.Sprintf("process exited with code %d during startup", code))

	return startupFailureText(s, code), fmt.Errorf("%w: exit code %d", ErrPrematureExit, code)
}

// Stop terminates the session's process if one is live. Stopping an
// unknown or already-stopped session is not an error; it triggers a
// sweep of orphaned port reservations instead.
func (r *Registry) Stop(sessionID string) *StopResult {
	lock := r.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	r.metrics.recordStop()

	r.mu.RLock()
	s := r.sessions[sessionID]
	r.mu.RUnlock()

	if s == nil || s.proc == nil {
		reaped := r.ReapOrphans()
		if reaped > 0 {
			logging.Infof("stop(%s): no active process, reclaimed %d orphaned port reservations", sessionID, reaped)
		}
		return &StopResult{Stopped: false, Message: "no active process for session"}
	}

	r.stopProcess(s, "stopping application")
	r.recordEvent(s, "stopped", "")
	return &StopResult{Stopped: true, Message: "application stopped"}
}

// stopProcess runs the full stop protocol on a session whose lock is
// already held: graceful termination with bounded escalation, port
// release, state transition. The log buffer is retained.
func (r *Registry) stopProcess(s *Session, message string) {
	s.Status = StatusStopping
	s.logs.Append(StreamSystem, message)

	s.proc.Terminate(true, r.terminationWait)
	if code, ok := s.proc.ExitCode(); ok {
		s.ExitCode = &code
	}
	s.proc = nil
	r.ports.Release(s.ID)
	s.Status = StatusStopped
	r.metrics.recordRunning(-1)
	r.metrics.recordAllocatedPorts(len(r.ports.Reserved()))
	s.logs.Append(StreamSystem, "application stopped")
}

// Restart is stop followed by start on the session's own directory
func (r *Registry) Restart(ctx context.Context, sessionID string) (*StartResult, error) {
	r.mu.RLock()
	s := r.sessions[sessionID]
	r.mu.RUnlock()

	if s == nil {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}

	// ProjectDir is written under the per-session lock, so snapshot it
	// under the same lock.
	lock := r.locks.get(sessionID)
	lock.Lock()
	dir := s.ProjectDir
	lock.Unlock()

	if dir == "" {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}

	r.Stop(sessionID)
	return r.Start(ctx, dir, sessionID)
}

// Status reports the session's current state and recent logs. A
// process found dead since the last check is reaped to STOPPED here.
func (r *Registry) Status(sessionID string) *StatusResult {
	lock := r.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	s := r.sessions[sessionID]
	r.mu.RUnlock()

	if s == nil {
		return &StatusResult{SessionID: sessionID, Running: false}
	}

	if s.proc != nil && !s.proc.Alive() {
		code, _ := s.proc.ExitCode()
		s.ExitCode = &code
		s.proc = nil
		r.ports.Release(s.ID)
		s.Status = StatusStopped
		r.metrics.recordRunning(-1)
		s.logs.Append(StreamSystem, fmt.Sprintf("process exited with code %d", code))
		r.recordEvent(s, "exited", fmt.Sprintf("exit code %d", code))
	}

	res := &StatusResult{
		SessionID:   s.ID,
		Running:     s.proc != nil,
		Status:      s.Status,
		ProjectType: s.ProjectType,
		ProjectDir:  s.ProjectDir,
		PID:         s.PID,
		ExitCode:    s.ExitCode,
		Logs:        s.logs.Snapshot(),
	}
	if !s.StartTime.IsZero() {
		res.Duration = time.Since(s.StartTime)
	}
	if res.Running {
		res.URL = r.urlFor(s)
	}
	return res
}

// List reports the status of every tracked session
func (r *Registry) List() []*StatusResult {
	ids := r.SessionIDs()
	out := make([]*StatusResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Status(id))
	}
	return out
}

// ReapOrphans reclaims port reservations whose session has no live
// process, returning the count removed.
func (r *Registry) ReapOrphans() int {
	r.mu.RLock()
	active := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.proc != nil {
			active = append(active, id)
		}
	}
	r.mu.RUnlock()

	n := r.ports.ReapOrphans(active)
	if n > 0 {
		r.metrics.recordPortsReaped(n)
		r.metrics.recordAllocatedPorts(len(r.ports.Reserved()))
	}
	return n
}

// Close stops every running session and clears all reservations
func (r *Registry) Close() {
	for _, id := range r.SessionIDs() {
		lock := r.locks.get(id)
		lock.Lock()
		r.mu.RLock()
		s := r.sessions[id]
		r.mu.RUnlock()
		if s != nil && s.proc != nil {
			r.stopProcess(s, "shutting down")
			r.recordEvent(s, "stopped", "shutdown")
		}
		lock.Unlock()
	}
	r.ports.Clear()
}

// Helper methods

func (r *Registry) getOrCreate(sessionID, projectDir string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		s = &Session{
			ID:         sessionID,
			ProjectDir: projectDir,
			Status:     StatusCreated,
			logs:       NewLogBuffer(r.logBufferSize),
		}
		r.sessions[sessionID] = s
	}
	return s
}

// urlFor prefers a port the application announced in its own output
// over the allocated one.
func (r *Registry) urlFor(s *Session) string {
	port := s.Port
	if s.proc != nil {
		if detected := s.proc.DetectedPort(); detected != 0 {
			port = detected
		}
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func (r *Registry) recordEvent(s *Session, kind, detail string) {
	if r.recorder == nil {
		return
	}
	event := SessionEvent{
		SessionID:   s.ID,
		ProjectDir:  s.ProjectDir,
		ProjectType: s.ProjectType,
		Kind:        kind,
		Port:        s.Port,
		Detail:      detail,
	}
	if err := r.recorder.RecordEvent(event); err != nil {
		logging.Warn("failed to record session event", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// startupFailureText joins the exit code with the captured stderr tail
// so the auto-patch heuristic has something to chew on.
func startupFailureText(s *Session, code int) string {
	var lines []string
	for _, entry := range s.logs.Tail(50) {
		if entry.Stream == StreamStderr {
			lines = append(lines, entry.Line)
		}
	}
	if len(lines) == 0 {
		for _, entry := range s.logs.Tail(20) {
			if entry.Stream == StreamStdout {
				lines = append(lines, entry.Line)
			}
		}
	}
	return fmt.Sprintf("process exited with code %d\n%s", code, strings.Join(lines, "\n"))
}
