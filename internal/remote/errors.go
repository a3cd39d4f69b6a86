package remote

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a sync failure into the categories the
// coordinator distinguishes: transient failures wait for the next
// trigger, quota and auth problems need user action, conflicts are
// resolved by the merge resolver.
type ErrorKind int

const (
	Transient ErrorKind = iota
	Quota
	AuthExpired
	Conflict
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Quota:
		return "quota"
	case AuthExpired:
		return "auth-expired"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// SyncError wraps a failed remote operation with its classification.
type SyncError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the operation is worth repeating on a later
// trigger without user intervention.
func (e *SyncError) Temporary() bool {
	return e.Kind == Transient
}

// classifyStatus maps an HTTP response status to an error kind.
// Anything unrecognized counts as transient: waiting for the next
// trigger is the safe default.
func classifyStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthExpired
	case http.StatusConflict:
		return Conflict
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests, http.StatusInsufficientStorage:
		return Quota
	}
	return Transient
}
