package engine

import "errors"

// Sentinel errors surfaced by Submit/Claim and the admin operations. Every
// failure aborts the enclosing call; callers resubmit with a fresh intent
// after fixing the cause, the engine never retries internally.
var (
	ErrZeroAmount       = errors.New("engine: amount must be positive")
	ErrInvalidVault     = errors.New("engine: intent vault does not match configured vault")
	ErrIntentExpired    = errors.New("engine: intent deadline passed")
	ErrNonceAlreadyUsed = errors.New("engine: nonce already used")
	ErrAlreadyExecuted  = errors.New("engine: intent already executed")

	ErrDepositNotFound = errors.New("engine: deposit not found")
	ErrNotAsync        = errors.New("engine: deposit was settled synchronously")
	ErrAlreadyClaimed  = errors.New("engine: deposit already claimed")
	ErrVaultNotReady   = errors.New("engine: vault not ready")

	ErrNotOwner        = errors.New("engine: caller is not the owner")
	ErrInvalidTreasury = errors.New("engine: treasury must be a non-zero address")
)
