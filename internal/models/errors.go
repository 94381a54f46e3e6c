package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeStorage   = "STORAGE_UNAVAILABLE"
	ErrCodeRemote    = "REMOTE_UNAVAILABLE"
	ErrCodeExhausted = "QUEUE_ITEM_EXHAUSTED"
	ErrCodeQueued    = "WRITE_QUEUED"
	ErrCodeConfig    = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrStorageUnavailable = errors.New("local store unavailable")
	ErrRemoteUnavailable  = errors.New("remote API unavailable")
	ErrQueueItemExhausted = errors.New("queue item exceeded retry limit")
	ErrWriteQueued        = errors.New("write queued for sync")
	ErrNotFound           = errors.New("record not found")
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// RemoteError represents a failed remote API call, either a transport
// failure or a non-2xx response. Both are treated identically by the
// sync layer; the status code is retained for diagnostics.
type RemoteError struct {
	Method     string
	Path       string
	StatusCode int // 0 when the request never reached the server
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrRemoteUnavailable
}

// Is lets errors.Is match any RemoteError against ErrRemoteUnavailable.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

// QueuedWriteError signals that a write did not complete against the
// remote and was durably queued instead. The caller must surface this:
// queued writes are never reported as synchronous successes.
type QueuedWriteError struct {
	EntityType  EntityType
	Action      Action
	QueueItemID string
	Err         error // the remote failure, or nil when the device was offline
}

func (e *QueuedWriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot %s %s: remote unavailable, change queued for sync (item %s)",
			e.Action, e.EntityType, e.QueueItemID)
	}
	return fmt.Sprintf("cannot %s %s while offline: change queued for sync (item %s)",
		e.Action, e.EntityType, e.QueueItemID)
}

func (e *QueuedWriteError) Unwrap() error { return e.Err }

// Is lets errors.Is match against ErrWriteQueued.
func (e *QueuedWriteError) Is(target error) bool {
	return target == ErrWriteQueued
}
