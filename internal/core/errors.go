package core

import (
	"errors"
	"fmt"
)

// ErrBinaryUnavailable means the core executable is missing or not
// executable. Fatal to Start; the supervisor stays Stopped.
var ErrBinaryUnavailable = errors.New("core binary unavailable")

// ErrReloadRejected means the control plane refused to apply a new
// configuration. The previously recorded config path is kept.
var ErrReloadRejected = errors.New("config reload rejected by control plane")

// ErrNotRunning is returned by operations that need a live control plane.
var ErrNotRunning = errors.New("core is not running")

// ExitedEarlyError reports that the core process died before surviving the
// startup grace period.
type ExitedEarlyError struct {
	Code int
}

func (e *ExitedEarlyError) Error() string {
	return fmt.Sprintf("core process exited during startup (exit code %d)", e.Code)
}
