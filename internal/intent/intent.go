package intent

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DepositIntent is the user-signed instruction the router executes on the
// user's behalf. It is constructed off-chain and never persisted verbatim;
// only the derived DepositRecord survives a successful submit.
type DepositIntent struct {
	User     common.Address `json:"user"`
	Vault    common.Address `json:"vault"`
	Asset    common.Address `json:"asset"`
	Amount   *big.Int       `json:"amount"`
	Nonce    uint64         `json:"nonce"`
	Deadline uint64         `json:"deadline"` // unix seconds, inclusive
	Referrer common.Address `json:"referrer"` // optional fee beneficiary (kol), zero when absent
}

// ID derives the deterministic intent identifier used as the primary key of
// the durable deposit record.
//
// Only user, nonce, vault and amount participate; asset, deadline and
// referrer are deliberately excluded, so two intents differing only in those
// fields collide on the same id. The engine treats the id as the binding
// replay guard, which makes the collision a documented limitation rather
// than a defect. Do not widen the field set without changing replay
// semantics everywhere.
func (i *DepositIntent) ID() common.Hash {
	nonce := new(big.Int).SetUint64(i.Nonce)
	amount := i.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return crypto.Keccak256Hash(
		i.User.Bytes(),
		common.LeftPadBytes(nonce.Bytes(), 32),
		i.Vault.Bytes(),
		common.LeftPadBytes(amount.Bytes(), 32),
	)
}
