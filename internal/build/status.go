package build

import "strings"

// Status is the closed set of build states the relay understands.
//
// The bus may introduce new states at any time; those decode to
// StatusUnknown rather than failing the message (see Decode).
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusQueued
	StatusWorking
	StatusSuccess
	StatusFailure
	StatusInternalError
	StatusTimeout
	StatusCancelled
	StatusExpired
)

var statusNames = map[Status]string{
	StatusUnknown:       "UNKNOWN",
	StatusPending:       "PENDING",
	StatusQueued:        "QUEUED",
	StatusWorking:       "WORKING",
	StatusSuccess:       "SUCCESS",
	StatusFailure:       "FAILURE",
	StatusInternalError: "INTERNAL_ERROR",
	StatusTimeout:       "TIMEOUT",
	StatusCancelled:     "CANCELLED",
	StatusExpired:       "EXPIRED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseStatus maps a wire status string onto the closed set.
// Anything unrecognized becomes StatusUnknown, never an error.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return StatusPending
	case "QUEUED":
		return StatusQueued
	case "WORKING":
		return StatusWorking
	case "SUCCESS":
		return StatusSuccess
	case "FAILURE":
		return StatusFailure
	case "INTERNAL_ERROR":
		return StatusInternalError
	case "TIMEOUT":
		return StatusTimeout
	case "CANCELLED":
		return StatusCancelled
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the build reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusInternalError, StatusTimeout, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
