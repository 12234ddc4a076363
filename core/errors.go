package core

import "errors"

// Local validation failures. The transaction is rejected and nothing is mutated.
var (
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrMissingField         = errors.New("missing field")
)

// Merkle operation failures.
var (
	ErrEmptyInput = errors.New("empty input")
	ErrNotFound   = errors.New("not found")
)

var (
	// ErrChainValidation marks a candidate chain that failed linkage, Merkle or proof checks.
	ErrChainValidation = errors.New("chain validation failed")
	// ErrNoValidators is returned by proof-of-stake when there is no stake to select from.
	ErrNoValidators = errors.New("no validators with stake")
	// ErrStaleTip is returned when the chain tip moved while a proof was being searched.
	ErrStaleTip = errors.New("chain tip changed during proof search")
)
