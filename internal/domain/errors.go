package domain

import (
	"errors"
	"fmt"
	"time"
)

// Request validation errors
var (
	ErrMissingParameter = errors.New("missing required parameter")
	ErrUnknownPackTier  = errors.New("unknown pack type")
	ErrInvalidRecipient = errors.New("invalid recipient address")
)

// Per-card pipeline errors
var (
	ErrPublish         = errors.New("content publish failed")
	ErrNoMatchingAsset = errors.New("no matching asset")
	ErrChain           = errors.New("chain mint failed")
	ErrChainTimeout    = errors.New("chain confirmation timed out")
	ErrLedger          = errors.New("ledger write failed")
	ErrDuplicateRecord = errors.New("token already recorded")
)

// Counter errors
var (
	ErrCounterCorruption  = errors.New("token counter state is corrupt")
	ErrCounterUnavailable = errors.New("token counter unavailable")
	ErrMintLockLost       = errors.New("mint lock lost")
	ErrShuttingDown       = errors.New("minter is shutting down")
)

// Ledger query errors
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrNoTokens       = errors.New("no tokens found for wallet")
	ErrUnauthorized   = errors.New("unauthorized")
)

// IsValidation reports whether err was raised before any side effect.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrUnknownPackTier) ||
		errors.Is(err, ErrInvalidRecipient)
}

// StepError records where a pack run stopped.
type StepError struct {
	Step    CardState
	Rarity  Rarity
	TokenID uint64
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s card (token %d) failed after %s: %v", e.Rarity, e.TokenID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ChainTimeoutError means the transaction was submitted but no receipt arrived
// in time. It may still be mined.
type ChainTimeoutError struct {
	TxHash string
	Wait   time.Duration
}

func (e *ChainTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed within %s, it may still be mined", e.TxHash, e.Wait)
}

func (e *ChainTimeoutError) Is(target error) bool {
	return target == ErrChainTimeout || target == ErrChain
}
