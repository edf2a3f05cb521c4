// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "errors"

// Kind classifies a stream error. Values are stable API identifiers.
type Kind string

const (
	KindDuplicateActiveSession Kind = "DuplicateActiveSession"
	KindQuotaExceeded          Kind = "QuotaExceeded"
	KindResolutionNotAllowed   Kind = "ResolutionNotAllowed"
	KindAssetNotFound          Kind = "AssetNotFound"
	KindEncoderSpawnFailure    Kind = "EncoderSpawnFailure"
	KindEncoderCrashed         Kind = "EncoderCrashed"
	KindSessionNotFound        Kind = "SessionNotFound"
	KindInvalidRequest         Kind = "InvalidRequest"
	KindInternal               Kind = "Internal"
)

// Error carries a kind plus a human-readable reason. errors.Is matches on
// kind, so callers can compare against the sentinel values below.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrDuplicateActiveSession = &Error{Kind: KindDuplicateActiveSession}
	ErrQuotaExceeded          = &Error{Kind: KindQuotaExceeded}
	ErrResolutionNotAllowed   = &Error{Kind: KindResolutionNotAllowed}
	ErrAssetNotFound          = &Error{Kind: KindAssetNotFound}
	ErrEncoderSpawnFailure    = &Error{Kind: KindEncoderSpawnFailure}
	ErrEncoderCrashed         = &Error{Kind: KindEncoderCrashed}
	ErrSessionNotFound        = &Error{Kind: KindSessionNotFound}
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest}
)

// NewError builds an Error of the given kind.
func NewError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the human-readable reason of err. Foreign errors are not
// exposed and yield a generic message.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Reason != "" {
			return e.Reason
		}
		return string(e.Kind)
	}
	return "internal error"
}
