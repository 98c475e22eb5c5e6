package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckpointMissing is returned when a checkpoint file is absent or
	// not a regular file.
	ErrCheckpointMissing = errors.New("checkpoint missing")
	// ErrBridgeClosed is returned once the Python process has exited or been
	// killed.
	ErrBridgeClosed = errors.New("inference bridge closed")
	// ErrProtocol is returned when a response does not match its request.
	ErrProtocol = errors.New("inference bridge protocol error")
)

// BridgeError is a failure reported by the Python side for one request.
type BridgeError struct {
	Op      string
	Type    string
	Message string
}

func (e *BridgeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("bridge %s: %s: %s", e.Op, e.Type, e.Message)
	}
	return fmt.Sprintf("bridge %s: %s", e.Op, e.Message)
}
