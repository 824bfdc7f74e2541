package preview

import "errors"

// Failure kinds for preview startup. DetectionFailure and
// ResolutionFailure abort a start before any process exists;
// PrematureExit is the only kind that triggers the auto-patch retry.
var (
	// ErrDetection - the project directory matched no known runtime kind
	ErrDetection = errors.New("project type could not be detected")

	// ErrPrepare - dependency installation or venv setup failed
	ErrPrepare = errors.New("environment preparation failed")

	// ErrResolution - a recognized project had no runnable entrypoint
	ErrResolution = errors.New("no runnable entrypoint for project")

	// ErrPortExhausted - no free port in the configured range
	ErrPortExhausted = errors.New("no free port available in range")

	// ErrSpawn - the OS could not create the child process
	ErrSpawn = errors.New("failed to spawn preview process")

	// ErrPrematureExit - the process exited within its grace window
	ErrPrematureExit = errors.New("process exited during startup grace period")

	// ErrPatchSuggestion - the patch collaborator returned nothing usable
	ErrPatchSuggestion = errors.New("patch suggestion unavailable")
)

// FailureKind maps a start failure to a stable label for metrics and
// API responses.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrDetection):
		return "detection"
	case errors.Is(err, ErrPrepare):
		return "prepare"
	case errors.Is(err, ErrResolution):
		return "resolution"
	case errors.Is(err, ErrPortExhausted):
		return "port_exhausted"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrPrematureExit):
		return "premature_exit"
	case errors.Is(err, ErrPatchSuggestion):
		return "patch_suggestion"
	default:
		return "internal"
	}
}
