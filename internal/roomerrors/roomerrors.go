// SPDX-License-Identifier: MIT

// Package roomerrors defines the named error kinds shared across the
// resolver, recorder, and disk probe components, and the policy each kind
// carries (counted toward the governor window, fatal at startup, logged
// only, and so on). Having one vocabulary lets RoomSupervisor dispatch on
// kind without each component inventing its own error taxonomy.
package roomerrors

import "errors"

// Kind classifies an error for governor accounting and supervisor policy.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkFailure
	KindParseFailure
	KindProxyRequired
	KindAuthRequired
	KindUnknownHost
	KindRecorderExitNonZero
	KindRecorderExitClean
	KindDiskFull
	KindMuxerMissing
	KindNotificationFailure
)

func (k Kind) String() string {
	switch k {
	case KindNetworkFailure:
		return "NetworkFailure"
	case KindParseFailure:
		return "ParseFailure"
	case KindProxyRequired:
		return "ProxyRequired"
	case KindAuthRequired:
		return "AuthRequired"
	case KindUnknownHost:
		return "UnknownHost"
	case KindRecorderExitNonZero:
		return "RecorderExitNonZero"
	case KindRecorderExitClean:
		return "RecorderExitClean"
	case KindDiskFull:
		return "DiskFull"
	case KindMuxerMissing:
		return "MuxerMissing"
	case KindNotificationFailure:
		return "NotificationFailure"
	default:
		return "Unknown"
	}
}

// CountsTowardGovernor reports whether an error of this kind should be
// pushed into the governor's sliding error window.
func (k Kind) CountsTowardGovernor() bool {
	switch k {
	case KindNetworkFailure, KindParseFailure, KindProxyRequired, KindAuthRequired, KindRecorderExitNonZero:
		return true
	default:
		return false
	}
}

// Fatal reports whether an error of this kind should be raised to the
// process top level rather than handled by the owning supervisor.
func (k Kind) Fatal() bool {
	return k == KindDiskFull || k == KindMuxerMissing
}

// Error wraps an underlying error with a Kind so callers can branch on
// classification without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// As reports whether err (or one it wraps) carries the given Kind.
func As(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinels for callers that only need a bare marker. diskprobe.Check does
// not return ErrDiskFull: it wraps its own error with KindDiskFull, so its
// failure is matched with As(err, KindDiskFull), not errors.Is.
var (
	ErrDiskFull     = New(KindDiskFull, errors.New("disk space below configured floor"))
	ErrMuxerMissing = New(KindMuxerMissing, errors.New("muxer binary not found"))
)
