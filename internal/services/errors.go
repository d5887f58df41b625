package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across services. Handlers map these onto HTTP
// status codes; anything else surfaces as a 500.
var (
	// ErrNotFound means no record matched any identity alias. Devices
	// receiving it should treat it as "re-provision required".
	ErrNotFound = errors.New("record not found")

	// ErrTokenInvalid covers unknown and already-consumed enrollment tokens.
	ErrTokenInvalid = errors.New("invalid enrollment token")

	// ErrTokenExpired means the token existed but its TTL elapsed; the
	// record stays PENDING and a new token must be issued.
	ErrTokenExpired = errors.New("enrollment token expired")

	// ErrAlreadyRemoved flags a command against a REMOVED binding. The
	// mailbox write is harmless, so callers treat this as a warning.
	ErrAlreadyRemoved = errors.New("device already removed")
)

// InvalidCommandError is returned when a command falls outside the closed
// vocabulary. It carries the valid set for the error response.
type InvalidCommandError struct {
	Command       string
	ValidCommands []string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %q (valid: %s)", e.Command, strings.Join(e.ValidCommands, ", "))
}
