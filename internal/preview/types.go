package preview

import (
	"sync"
	"time"
)

// SessionStatus represents the lifecycle state of a preview session
type SessionStatus string

const (
	StatusCreated  SessionStatus = "created"
	StatusStarting SessionStatus = "starting"
	StatusRunning  SessionStatus = "running"
	StatusStopping SessionStatus = "stopping"
	StatusStopped  SessionStatus = "stopped"
	StatusFailed   SessionStatus = "failed"
)

// ProjectType classifies the runtime kind of a generated project
type ProjectType string

const (
	TypeStatic    ProjectType = "static"
	TypeFlask     ProjectType = "flask"
	TypeExpress   ProjectType = "express"
	TypeReact     ProjectType = "react"
	TypeVue       ProjectType = "vue"
	TypeAngular   ProjectType = "angular"
	TypePHP       ProjectType = "php"
	TypeStreamlit ProjectType = "streamlit"
	TypeNode      ProjectType = "node"
	TypePython    ProjectType = "python"
	TypeUnknown   ProjectType = "unknown"
)

// Detection is the result of project type classification. Frontend and
// Backend are set when the directory holds a composite front+back layout.
type Detection struct {
	Type     ProjectType
	Frontend string
	Backend  string
}

// Multi reports whether both a frontend and backend subdirectory were found
func (d Detection) Multi() bool {
	return d.Frontend != "" && d.Backend != ""
}

// Session tracks one preview instance of a generated project
type Session struct {
	ID             string
	ProjectDir     string
	ProjectType    ProjectType
	Status         SessionStatus
	Port           int
	PID            int
	ExitCode       *int
	StartTime      time.Time
	PatchAttempted bool

	proc *Process
	// logs is created once per session and reset in place on restart,
	// so streaming readers keep a valid handle across restarts.
	logs *LogBuffer
}

// Logs returns the session's log buffer
func (s *Session) Logs() *LogBuffer {
	return s.logs
}

// StartResult is returned by Start and Restart
type StartResult struct {
	SessionID   string
	Status      SessionStatus
	ProjectType ProjectType
	URL         string
	PID         int
	Logs        []LogEntry
	Message     string
}

// StatusResult is returned by Status
type StatusResult struct {
	SessionID   string
	Running     bool
	Status      SessionStatus
	ProjectType ProjectType
	ProjectDir  string
	URL         string
	PID         int
	ExitCode    *int
	Duration    time.Duration
	Logs        []LogEntry
}

// StopResult is returned by Stop
type StopResult struct {
	Stopped bool
	Message string
}

// SessionEvent is a lifecycle record handed to the event recorder
type SessionEvent struct {
	SessionID   string
	ProjectDir  string
	ProjectType ProjectType
	Kind        string
	Port        int
	Detail      string
}

// EventRecorder persists session lifecycle events. Implementations must
// tolerate concurrent calls; recording failures are logged, never fatal.
type EventRecorder interface {
	RecordEvent(event SessionEvent) error
}

// sessionLocks hands out one mutex per session id so that operations on
// the same session are strictly ordered while different sessions proceed
// independently.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (sl *sessionLocks) get(sessionID string) *sync.Mutex {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	lock, exists := sl.locks[sessionID]
	if !exists {
		lock = &sync.Mutex{}
		sl.locks[sessionID] = lock
	}
	return lock
}
