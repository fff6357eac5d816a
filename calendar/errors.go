package calendar

import (
	"errors"

	"taskboard-api/storage"
)

// refreshFailedSentinel is the exact error string the sync function
// returns when the stored refresh token is rejected by the provider. It
// is the trigger for forced disconnection.
const refreshFailedSentinel = "Failed to refresh Microsoft access token"

// ErrConnectionExpired means the provider rejected the stored refresh
// credential. The client has already forcibly disconnected; the user must
// reconnect, not retry.
var ErrConnectionExpired = errors.New("calendar: connection expired, please reconnect")

// ErrNotConnected means no refresh credential is stored for the user.
var ErrNotConnected = errors.New("calendar: not connected")

// ErrSyncDisabled means a sync was requested while the toggle is off.
var ErrSyncDisabled = errors.New("calendar: sync is not enabled")

// SyncError wraps a transport or provider failure that the caller may
// retry by re-invoking the operation. The client never retries on its
// own.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string { return "calendar: " + e.Op + ": " + e.Err.Error() }

func (e *SyncError) Unwrap() error { return e.Err }

func isNotFound(err error) bool { return errors.Is(err, storage.ErrNotFound) }
