/*
errors.go - Sentinel errors returned by Store implementations

PURPOSE:
  Central definitions so domain packages can match with errors.Is and wrap
  with their own user-facing errors. Store implementations must return
  exactly these values (or structured errors unwrapping to them) for the
  conditions they name.
*/
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when an account id or phone number does
	// not resolve to a user row.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicatePhone is returned when registering a phone number that
	// already has an account. Enforced by the unique index on users.phone.
	ErrDuplicatePhone = errors.New("phone number already registered")

	// ErrInsufficientFunds is returned when a debit would drive a balance
	// negative. The debit is not applied.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrVideoNotFound is returned for unknown video ids.
	ErrVideoNotFound = errors.New("video not found")

	// ErrDuplicateClaim is returned when inserting a claim row that already
	// exists for the (user, video) pair. This is the storage-level backstop
	// behind the unique index; callers normally reject duplicates earlier.
	ErrDuplicateClaim = errors.New("claim already recorded")

	// ErrScoreNotFound is returned when no score row exists for the
	// requested (user, game, day) bucket.
	ErrScoreNotFound = errors.New("score not found")
)

// InsufficientFundsError carries the balance shortfall details.
type InsufficientFundsError struct {
	UserID    string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, requested %d (shortfall %d)",
		e.Available, e.Requested, e.Requested-e.Available)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsNotFound reports whether err indicates a missing row of any kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrVideoNotFound) ||
		errors.Is(err, ErrScoreNotFound)
}
