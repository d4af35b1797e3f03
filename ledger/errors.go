package ledger

import "errors"

// Validation reasons. Rejection of a transaction or block is expected
// traffic, reported as one of these and never as a panic; the ledger's
// state is untouched whenever one is returned.
var (
	// Transaction rules.
	ErrInvalidSignature    = errors.New("invalid transaction signature")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Block rules, in validation order.
	ErrIndexMismatch         = errors.New("block index mismatch")
	ErrPrevHashMismatch      = errors.New("previous hash mismatch")
	ErrHashMismatch          = errors.New("block hash mismatch")
	ErrMerkleMismatch        = errors.New("merkle root mismatch")
	ErrInvalidBlockSignature = errors.New("invalid validator signature")
)

// ErrCorruptedStore marks persisted chain data that is missing,
// malformed or internally inconsistent. It is fatal at startup: a
// corrupted ledger is not recovered locally.
var ErrCorruptedStore = errors.New("corrupted chain storage")
