package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type queuedRequest struct {
	amount     *big.Int
	controller common.Address
	owner      common.Address
	finalized  bool
}

// MockVault implements the dual-path vault contract in memory. Readiness is
// switchable so tests can drive both the synchronous and asynchronous paths.
type MockVault struct {
	mu      sync.Mutex
	ready   bool
	queued  map[string]*queuedRequest
	units   map[common.Address]*big.Int
	settled int
}

func NewMockVault(ready bool) *MockVault {
	return &MockVault{
		ready:  ready,
		queued: make(map[string]*queuedRequest),
		units:  make(map[common.Address]*big.Int),
	}
}

// SetReady flips the immediate-settlement readiness flag.
func (m *MockVault) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *MockVault) ReadyForImmediateSettlement(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready, nil
}

func (m *MockVault) SettleNow(_ context.Context, amount *big.Int, receiver, _ common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil, ErrNotReady
	}

	// 1:1 unit pricing; share-price accounting is out of scope.
	m.creditLocked(receiver, amount)
	m.settled++
	return new(big.Int).Set(amount), nil
}

func (m *MockVault) QueueRequest(_ context.Context, amount *big.Int, controller, owner common.Address) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requestID := uuid.NewString()
	m.queued[requestID] = &queuedRequest{
		amount:     new(big.Int).Set(amount),
		controller: controller,
		owner:      owner,
	}
	return requestID, nil
}

func (m *MockVault) FinalizeQueuedRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.queued[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if req.finalized {
		return fmt.Errorf("%w: %s already finalized", ErrRequestNotFound, requestID)
	}
	if !m.ready {
		return ErrNotReady
	}

	req.finalized = true
	m.creditLocked(req.owner, req.amount)
	return nil
}

// UnitsOf reports the settlement units minted to account so far.
func (m *MockVault) UnitsOf(account common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.units[account]; ok {
		return new(big.Int).Set(u)
	}
	return new(big.Int)
}

// SettleNowCalls reports how many immediate settlements happened.
func (m *MockVault) SettleNowCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

// PendingRequests reports the number of queued, unfinalized requests.
func (m *MockVault) PendingRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, req := range m.queued {
		if !req.finalized {
			n++
		}
	}
	return n
}

func (m *MockVault) creditLocked(account common.Address, amount *big.Int) {
	current, ok := m.units[account]
	if !ok {
		current = new(big.Int)
	}
	m.units[account] = new(big.Int).Add(current, amount)
}
