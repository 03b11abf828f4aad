// Package errors holds the domain errors shared across the daemon.
package errors

import stderr "errors"

// New returns an error that formats as the given text.
func New(msg string) error {
	return stderr.New(msg)
}

var (
	// NoProjectRootError reports that a request could not be associated with any workspace folder.
	NoProjectRootError = New("no workspace folder contains the document")
	// ErrTransportClosed is returned for calls made on a transport that has already shut down.
	ErrTransportClosed = New("transport closed")
	// ErrClientDestroyed is returned to waiters when a build-agent client is torn down.
	ErrClientDestroyed = New("build agent client destroyed")
	// ErrRestarting is the error of a client that is being restarted on request.
	ErrRestarting = New("build agent restart requested")
	// ErrStaleGeneration is returned for a response that arrived after its client was restarted.
	ErrStaleGeneration = New("response belongs to a previous build agent generation")
)
