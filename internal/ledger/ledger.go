package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds indicates the source balance does not cover the
	// requested transfer.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientAllowance indicates the spender's allowance does not
	// cover a transferFrom.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")

	// ErrTransferFailed covers any other rejection by the underlying token.
	ErrTransferFailed = errors.New("ledger: transfer failed")
)

// Ledger abstracts the fungible-token custody the router debits and credits.
// Implementations never report success without having checked the token's
// own result; a rejected transfer surfaces as one of the sentinels above.
type Ledger interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
}
