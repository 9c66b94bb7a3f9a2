// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios: for
// example, ErrTokenExpired signals that an exchange token existed but was
// presented after its deadline, which maps to a different client message
// than a token that never existed at all.
package repository

import "errors"

// ErrTokenInvalid is returned when an exchange token is empty or unknown.
// A token that has already been redeemed is indistinguishable from one
// that never existed; both surface as ErrTokenInvalid.
var ErrTokenInvalid = errors.New("invalid exchange token")

// ErrTokenExpired is returned when an exchange token is found but its
// expiry instant has passed.  The row is deleted as a side effect so the
// token cannot be probed repeatedly.
var ErrTokenExpired = errors.New("exchange token expired")
