package replenisher

import "errors"

var (
	// ErrCustomerNotFound is returned when the acting customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrReplenishmentNotFound is returned when the replenishment does not
	// exist or is not owned by the acting customer.
	ErrReplenishmentNotFound = errors.New("replenishment not found")

	// ErrInvalidTransition is returned when an operation is not allowed in the
	// replenishment's current status. It is always wrapped with the offending
	// status.
	ErrInvalidTransition = errors.New("operation not allowed in current status")

	// ErrInvalidRecurrence is returned for an unusable interval/unit pair.
	ErrInvalidRecurrence = errors.New("invalid recurrence parameters")

	// ErrScheduling is returned when the schedule engine failed to produce a
	// usable schedule; the triggering operation is aborted as a whole.
	ErrScheduling = errors.New("scheduling failed")

	// ErrSnapshotMissing is returned when a retained snapshot that must exist
	// (resume path) is gone. This is a data-integrity failure, never guessed
	// around.
	ErrSnapshotMissing = errors.New("snapshot missing for pending occurrence")

	// ErrLocked is returned when another operation holds the write lock for
	// the same replenishment.
	ErrLocked = errors.New("replenishment is locked by a concurrent operation")
)
