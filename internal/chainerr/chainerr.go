// Package chainerr enumerates every distinct failure kind the engine can
// surface. Callers are expected to discriminate with errors.Is, never on
// an error's formatted string.
package chainerr

import "errors"

// Input.
var (
	ErrInvalidAddress    = errors.New("invalid-address")
	ErrInvalidHash       = errors.New("invalid-hash")
	ErrInvalidPrivateKey = errors.New("invalid-private-key")
	ErrInvalidHex        = errors.New("invalid-hex")
)

// Codec.
var ErrMalformedRLP = errors.New("malformed-rlp")

// Signature.
var (
	ErrNonCanonicalSignature = errors.New("non-canonical-signature")
	ErrInvalidRecoveryID     = errors.New("invalid-recovery-id")
	ErrBadSignature          = errors.New("bad-signature")
	ErrLegacySignature       = errors.New("legacy-signature")
)

// Transaction admission.
var (
	ErrDuplicateHash     = errors.New("duplicate-hash")
	ErrNonceTooLow       = errors.New("nonce-too-low")
	ErrNonceConflict     = errors.New("nonce-conflict")
	ErrGasUnderpriced    = errors.New("gas-underpriced")
	ErrGasUnderlimit     = errors.New("gas-underlimit")
	ErrInsufficientFunds = errors.New("insufficient-funds")
	ErrRateLimited       = errors.New("rate-limited")
)

// State/consistency.
var (
	ErrStateRootMismatch = errors.New("state-root-mismatch")
	ErrAccountNotFound   = errors.New("account-not-found")
)

// Storage.
var (
	ErrStoreBusy = errors.New("store-busy")
	ErrStoreIO   = errors.New("store-io")
)

// Producer.
var (
	ErrNoParentBlock = errors.New("no-parent-block")
	ErrProducerBusy  = errors.New("producer-busy")
)

// Boundary seams to out-of-scope collaborators.
var ErrNotImplemented = errors.New("not-implemented")
