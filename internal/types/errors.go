package types

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError indicates malformed input: a generated name that breaks
// the length invariant, a missing project ID, an empty repo. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// ProvisioningError indicates the sandbox provider refused an allocation
// (quota exhausted, invalid or colliding name). The orchestration layer
// does not retry these; callers retry the whole create if they want to.
type ProvisioningError struct {
	SandboxName string
	Err         error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision sandbox %s: %v", e.SandboxName, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// SetupTimeoutError indicates the clone+install+boot sequence did not
// produce a listening port within the configured window. The sandbox that
// was created is NOT torn down automatically; operators reclaim it with an
// explicit destroy.
type SetupTimeoutError struct {
	SandboxName string
	Timeout     time.Duration
}

func (e *SetupTimeoutError) Error() string {
	return fmt.Sprintf("sandbox %s did not come up within %v", e.SandboxName, e.Timeout)
}

// PreconditionError indicates a setup step was requested out of order.
// Caller error, never retried.
type PreconditionError struct {
	SessionID    string
	Step         int
	MissingSteps []int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot execute step %d of session %s: steps %v not yet completed",
		e.Step, e.SessionID, e.MissingSteps)
}

// PreviewError wraps any failure inside CreatePreview with the project ID
// attached so the HTTP layer can correlate the failure without parsing
// message text. Stage names which provisioning step broke.
type PreviewError struct {
	ProjectID string
	Stage     string
	Err       error
}

func (e *PreviewError) Error() string {
	return fmt.Sprintf("preview %s failed at %s: %v", e.ProjectID, e.Stage, e.Err)
}

func (e *PreviewError) Unwrap() error { return e.Err }

// ErrCreateInProgress is returned when a second CreatePreview arrives for
// a project whose first create has not finished. The source left this
// race unguarded; we reject the duplicate instead.
var ErrCreateInProgress = errors.New("a preview create is already in progress for this project")

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("setup session not found")

// ErrSessionTerminal is returned when a step is requested on a completed
// or cancelled session. Failed sessions are not terminal for this purpose.
var ErrSessionTerminal = errors.New("setup session is already in a terminal state")

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsTimeout reports whether err is (or wraps) a SetupTimeoutError.
func IsTimeout(err error) bool {
	var te *SetupTimeoutError
	return errors.As(err, &te)
}
