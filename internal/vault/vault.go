package vault

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRequestNotFound indicates a finalize call for an unknown queued
	// request id.
	ErrRequestNotFound = errors.New("vault: queued request not found")

	// ErrNotReady indicates the vault rejected an operation because it
	// cannot settle at the moment.
	ErrNotReady = errors.New("vault: not ready for settlement")
)

// Vault is the destination a verified deposit is forwarded to. A vault may
// accept funds immediately (synchronous path) or only after queuing a
// request that is finalized later by a claim.
type Vault interface {
	// ReadyForImmediateSettlement reports whether SettleNow would succeed
	// right now. The answer can change between calls.
	ReadyForImmediateSettlement(ctx context.Context) (bool, error)

	// SettleNow credits the vault with amount and mints settlement units to
	// receiver in the same call. Returns the units minted.
	SettleNow(ctx context.Context, amount *big.Int, receiver, referrer common.Address) (*big.Int, error)

	// QueueRequest records a deferred deposit of amount, controlled by
	// controller on behalf of owner, and returns the request identifier
	// used to finalize it later.
	QueueRequest(ctx context.Context, amount *big.Int, controller, owner common.Address) (string, error)

	// FinalizeQueuedRequest settles a previously queued request. The vault
	// mints units to the request's owner as a side effect.
	FinalizeQueuedRequest(ctx context.Context, requestID string) error
}
