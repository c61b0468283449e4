// Package common defines shared constants and sentinel errors used across
// starauth layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// repository specific errors
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// ErrorStaleToken is returned by compare-and-swap token updates when the
	// stored value no longer equals the presented one.
	ErrorStaleToken = errors.New("stale token")

	// access token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
