// Package dberrors defines the stable error vocabulary shared by every
// layer of the storage engine: the core stays structural-failure and
// semantic-failure returns (duplicate key, not found, pool full, ...), plus
// a single transaction-abort condition for protocol violations.
package dberrors

import (
	goerrors "errors"

	"github.com/pkg/errors"
)

// Sentinel errors for the stable codes in spec.md §6. Compare with
// errors.Is; wrapped copies still satisfy it because callers wrap with
// errors.Wrap/Wrapf, which preserves the chain back to these sentinels.
var (
	ErrDuplicateKey            = goerrors.New("duplicate key")
	ErrNotFound                = goerrors.New("not found")
	ErrPoolFull                = goerrors.New("buffer pool full")
	ErrPageNotResident         = goerrors.New("page not resident")
	ErrPagePinned              = goerrors.New("page pinned")
	ErrTableUnlockedBeforeRows = goerrors.New("table unlocked before unlocking rows")
	ErrUnlockButNoLockHeld     = goerrors.New("attempted unlock but no lock held")
	ErrIntentionLockOnRow      = goerrors.New("attempted intention lock on row")
	ErrTableLockNotPresent     = goerrors.New("table lock not present")
	ErrUpgradeConflict         = goerrors.New("upgrade conflict")
	ErrIncompatibleUpgrade     = goerrors.New("incompatible upgrade")
)

// AbortReason names why a transaction was forced into the aborted state.
// Mirrors bustub's AbortReason enum (see original_source/src/concurrency),
// the precedent for treating protocol violations as a single distinguished
// condition rather than a grab-bag of ad-hoc errors.
type AbortReason int

const (
	ReasonLockSharedOnReadUncommitted AbortReason = iota
	ReasonLockOnShrinking
	ReasonUpgradeConflict
	ReasonIncompatibleUpgrade
	ReasonTableUnlockedBeforeUnlockingRows
	ReasonUnlockButNoLockHeld
	ReasonIntentionLockOnRow
	ReasonTableLockNotPresent
	ReasonDeadlock
)

func (r AbortReason) String() string {
	switch r {
	case ReasonLockSharedOnReadUncommitted:
		return "LockSharedOnReadUncommitted"
	case ReasonLockOnShrinking:
		return "LockOnShrinking"
	case ReasonUpgradeConflict:
		return "UpgradeConflict"
	case ReasonIncompatibleUpgrade:
		return "IncompatibleUpgrade"
	case ReasonTableUnlockedBeforeUnlockingRows:
		return "TableUnlockedBeforeUnlockingRows"
	case ReasonUnlockButNoLockHeld:
		return "AttemptedUnlockButNoLockHeld"
	case ReasonIntentionLockOnRow:
		return "AttemptedIntentionLockOnRow"
	case ReasonTableLockNotPresent:
		return "TableLockNotPresent"
	case ReasonDeadlock:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// AbortError is the single "transaction aborted" condition of spec.md §7
// band 3: every protocol violation surfaces as this type, carrying the
// reason code the caller needs to decide whether to retry at a higher
// level (it never should within the same transaction).
type AbortError struct {
	TxnID  uint64
	Reason AbortReason
	cause  error
}

func NewAbortError(txnID uint64, reason AbortReason) *AbortError {
	return &AbortError{TxnID: txnID, Reason: reason, cause: errors.WithStack(errors.Errorf("transaction %d aborted: %s", txnID, reason))}
}

func (e *AbortError) Error() string { return e.cause.Error() }
func (e *AbortError) Unwrap() error { return e.cause }

// IsAborted reports whether err is (or wraps) an AbortError.
func IsAborted(err error) bool {
	var ae *AbortError
	return goerrors.As(err, &ae)
}
