package errors

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// UUIDNotFoundError is returned when no session is stored under a UUID.
type UUIDNotFoundError struct {
	UUID uuid.UUID
}

func (e *UUIDNotFoundError) Error() string {
	return fmt.Sprintf("UUID %q not found", e.UUID)
}

// NoSessionFoundError indicates that a session cannot be found within the context.
type NoSessionFoundError struct{}

func (e *NoSessionFoundError) Error() string {
	return "no session found in context"
}

// ClientNotFoundError indicates that no build-agent client is registered under the given id or root.
type ClientNotFoundError struct {
	Key string
}

func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("no build agent client found for %q", e.Key)
}
