package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MockLedger keeps balances and allowances in memory with standard ERC-20
// semantics. Used by tests and local development.
type MockLedger struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	// FailNextTransfer forces the next Transfer/TransferFrom to fail with
	// ErrTransferFailed, to exercise abort paths.
	FailNextTransfer bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits an account out of thin air.
func (m *MockLedger) Mint(account common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Add(m.balanceLocked(account), amount)
}

func (m *MockLedger) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balanceLocked(account)), nil
}

// TransferAs moves amount from a named sender. The engine binds its own
// address via BoundLedger so the Ledger interface stays sender-implicit.
func (m *MockLedger) TransferAs(from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextTransfer {
		m.FailNextTransfer = false
		return ErrTransferFailed
	}
	return m.moveLocked(from, to, amount)
}

func (m *MockLedger) TransferFromAs(spender, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextTransfer {
		m.FailNextTransfer = false
		return ErrTransferFailed
	}

	allowance := m.allowanceLocked(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s < amount %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := m.moveLocked(from, to, amount); err != nil {
		return err
	}
	m.allowances[from][spender] = new(big.Int).Sub(allowance, amount)
	return nil
}

func (m *MockLedger) ApproveAs(owner, spender common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[common.Address]*big.Int)
	}
	m.allowances[owner][spender] = new(big.Int).Set(amount)
	return nil
}

func (m *MockLedger) Allowance(owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.allowanceLocked(owner, spender))
}

func (m *MockLedger) balanceLocked(account common.Address) *big.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (m *MockLedger) allowanceLocked(owner, spender common.Address) *big.Int {
	if inner, ok := m.allowances[owner]; ok {
		if a, ok := inner[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (m *MockLedger) moveLocked(from, to common.Address, amount *big.Int) error {
	balance := m.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s < amount %s", ErrInsufficientFunds, balance, amount)
	}
	m.balances[from] = new(big.Int).Sub(balance, amount)
	m.balances[to] = new(big.Int).Add(m.balanceLocked(to), amount)
	return nil
}

// BoundLedger adapts MockLedger to the Ledger interface by fixing the
// caller identity, mirroring how an on-chain token sees msg.sender.
type BoundLedger struct {
	Mock   *MockLedger
	Caller common.Address
}

func (b *BoundLedger) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return b.Mock.BalanceOf(ctx, account)
}

func (b *BoundLedger) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	return b.Mock.TransferAs(b.Caller, to, amount)
}

func (b *BoundLedger) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	return b.Mock.TransferFromAs(b.Caller, from, to, amount)
}

func (b *BoundLedger) Approve(_ context.Context, spender common.Address, amount *big.Int) error {
	return b.Mock.ApproveAs(b.Caller, spender, amount)
}
