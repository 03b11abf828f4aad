package errors

import (
	stderr "errors"
	"fmt"
	"time"
)

// ConfigurationError reports a project whose configuration cannot start a build agent.
// The client stays errored until its configuration changes or it is restarted.
type ConfigurationError struct {
	Root   string
	Reason string
}

// Error is an implementation of the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Root, e.Reason)
}

// ProcessError reports an agent subprocess that could not be started or exited unexpectedly.
type ProcessError struct {
	Root     string
	ExitCode int
	Err      error
}

// Error is an implementation of the error interface.
func (e *ProcessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("build agent for %q exited with code %d", e.Root, e.ExitCode)
	}
	return fmt.Sprintf("build agent for %q failed: %v", e.Root, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IOError is delivered to every pending request when a transport fails.
type IOError struct {
	Err error
}

// Error is an implementation of the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("transport i/o failure: %v", e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// StartupTimeoutError reports a handshake that did not complete within the configured bound.
type StartupTimeoutError struct {
	Root    string
	Timeout time.Duration
}

// Error is an implementation of the error interface.
func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("build agent for %q did not start within %s", e.Root, e.Timeout)
}

// NotReadyError reports an operation attempted while the client is in the wrong state.
type NotReadyError struct {
	Root  string
	State string
}

// Error is an implementation of the error interface.
func (e *NotReadyError) Error() string {
	return fmt.Sprintf("build agent for %q is %s", e.Root, e.State)
}

// IsConfigurationError reports whether a ConfigurationError is part of the error chain.
func IsConfigurationError(e error) bool {
	var ce *ConfigurationError
	return stderr.As(e, &ce)
}

// IsProcessError reports whether the error stems from the agent process or its transport.
func IsProcessError(e error) bool {
	var pe *ProcessError
	var ioe *IOError
	var te *StartupTimeoutError
	return stderr.As(e, &pe) || stderr.As(e, &ioe) || stderr.As(e, &te)
}
