package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is returned when the log cannot be reached: dial
	// failures, broken connections, timeouts and exhausted pools. It is
	// never masked as an empty or negative result.
	ErrUnavailable = errors.New("transport unavailable")
	// ErrNotFound is returned when a key or group does not exist.
	ErrNotFound = errors.New("not found")
	// ErrGroupExists is returned by CreateGroup for an existing group.
	ErrGroupExists = errors.New("consumer group already exists")
	// ErrNoGroup is returned when reading from or acking a missing group.
	ErrNoGroup = errors.New("no such consumer group")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
	// ErrUnexpectedReply is returned when a reply does not have the shape
	// of the Redis Streams contract.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// CommandError is an error reply from the log server.
type CommandError struct {
	Cmd string
	Msg string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cmd, e.Msg)
}

// Is maps well known server error codes onto the package sentinels.
func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrGroupExists:
		return strings.HasPrefix(e.Msg, "BUSYGROUP")
	case ErrNoGroup:
		return strings.HasPrefix(e.Msg, "NOGROUP")
	case ErrNotFound:
		return strings.HasPrefix(e.Msg, "NOGROUP") ||
			strings.Contains(e.Msg, "requires the key to exist")
	}
	return false
}

// IsUnavailable reports whether err means the log could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func unavailable(cmd string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, cmd, err)
}

func unexpected(cmd string, v interface{}) error {
	return fmt.Errorf("%w: %s: %T", ErrUnexpectedReply, cmd, v)
}
