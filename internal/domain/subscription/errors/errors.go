package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTargetNotFound       = errors.New("target not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrResubscribeTooSoon   = errors.New("cannot resubscribe within the cooldown window")
	ErrActiveTargetExists   = errors.New("user already has an active subscription of this kind")
	ErrInvalidUserID        = errors.New("invalid user ID")
	ErrInvalidTargetID      = errors.New("invalid target ID")
	ErrUnknownKind          = errors.New("unknown subscription kind")
	ErrStorage              = errors.New("storage operation failed")
)

// CooldownError is returned by Subscribe inside the cooldown window
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrResubscribeTooSoon, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrResubscribeTooSoon
}

// StorageError wraps any persistence failure not explained by a domain error
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err unless it is nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RemainingCooldown extracts the wait time from a cooldown error
func RemainingCooldown(err error) (time.Duration, bool) {
	var cooldownErr *CooldownError
	if errors.As(err, &cooldownErr) {
		return cooldownErr.Remaining, true
	}
	return 0, false
}
