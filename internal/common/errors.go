// Package common holds the errors and helpers shared by every ledger feature.
// Handlers compare against these sentinels with errors.Is to pick a response.
package common

import "errors"

// Store and infrastructure errors
var (
	// ErrNotFound is returned when a stake, endorsement or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps failures of the backing store or broker.
	ErrUnavailable = errors.New("ledger store unavailable")
	// ErrVersionConflict means the score snapshot changed between read and write.
	ErrVersionConflict = errors.New("score version conflict")
	// ErrConcurrencyExhausted is returned once every append retry hit a version conflict.
	ErrConcurrencyExhausted = errors.New("concurrent updates exhausted retries")
)

// Ledger errors
var (
	// ErrUserNotFound means no score snapshot exists for the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownTransactionType is returned for types outside the fixed enum.
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	// ErrInvalidAmount is a zero amount or one whose sign contradicts the type.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownCategory is returned for categories outside the four components
	// or a category the transaction type cannot credit.
	ErrUnknownCategory = errors.New("unknown score category")
	// ErrInvalidUserID is returned for non-positive user ids.
	ErrInvalidUserID = errors.New("user id must be positive")
	// ErrInvalidCursor is returned for a pagination cursor the ledger did not issue.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
	// ErrRefConflict means an idempotency ref is already bound to a
	// transaction for another user or of another type.
	ErrRefConflict = errors.New("reference already used by a different transaction")
)

// Endorsement errors
var (
	ErrSelfEndorsementNotAllowed = errors.New("self endorsement is not allowed")
	ErrInvalidLevel              = errors.New("endorsement level must be between 1 and 5")
	ErrDuplicateEndorsement      = errors.New("skill already endorsed by this user")
	ErrInvalidSkill              = errors.New("skill must not be empty")
)

// Staking errors
var (
	ErrStakeExceedsCap  = errors.New("stake exceeds allowed share of total score")
	ErrInvalidDuration  = errors.New("stake duration must be between 1 and 365 days")
	ErrUnknownStakeType = errors.New("unknown stake type")
	ErrUnknownOutcome   = errors.New("unknown settlement outcome")
)
