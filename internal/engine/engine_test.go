package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"intentrouter/internal/intent"
	"intentrouter/internal/ledger"
	"intentrouter/internal/models"
	"intentrouter/internal/repository"
	"intentrouter/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	ownerAddr    = common.HexToAddress("0x000000000000000000000000000000000000000a")
	routerAddr   = common.HexToAddress("0x0000000000000000000000000000000000000010")
	treasuryAddr = common.HexToAddress("0x0000000000000000000000000000000000000020")
	referrerAddr = common.HexToAddress("0x0000000000000000000000000000000000000030")
	vaultAddr    = common.HexToAddress("0x0000000000000000000000000000000000000040")
	assetAddr    = common.HexToAddress("0x0000000000000000000000000000000000000050")
)

// Fixed clock well before the test intents' deadlines.
var testNow = time.Unix(1_800_000_000, 0).UTC()

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	engine   *Engine
	verifier *intent.Verifier
	ledger   *ledger.MockLedger
	vault    *vault.MockVault
	deposits *repository.MemoryDepositRepository
	nonces   *repository.MemoryNonceRepository
	sink     *captureSink

	key  *ecdsa.PrivateKey
	user common.Address
}

func defaultFees() FeeConfig {
	return FeeConfig{
		Enabled:          true,
		Treasury:         treasuryAddr,
		FeeBps:           10,
		ReferrerShareBps: 70,
		ProtocolShareBps: 30,
	}
}

func newTestEnv(t *testing.T, ready bool, fees FeeConfig) *testEnv {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	env := &testEnv{
		verifier: intent.NewVerifier("IntentRouter", "1", 31337, routerAddr),
		ledger:   ledger.NewMockLedger(),
		vault:    vault.NewMockVault(ready),
		deposits: repository.NewMemoryDepositRepository(),
		nonces:   repository.NewMemoryNonceRepository(),
		sink:     &captureSink{},
		key:      key,
		user:     crypto.PubkeyToAddress(key.PublicKey),
	}

	env.engine, err = New(
		env.verifier,
		&ledger.BoundLedger{Mock: env.ledger, Caller: routerAddr},
		env.vault,
		env.deposits,
		env.nonces,
		Config{
			Owner: ownerAddr,
			Self:  routerAddr,
			Vault: vaultAddr,
			Fees:  fees,
			Now:   func() time.Time { return testNow },
		},
	)
	require.NoError(t, err)
	env.engine.AddSink(env.sink)
	return env
}

// newIntent builds a signable intent for the env's user and funds the pull.
func (env *testEnv) newIntent(t *testing.T, amount int64, nonce uint64) *intent.DepositIntent {
	t.Helper()
	in := &intent.DepositIntent{
		User:     env.user,
		Vault:    vaultAddr,
		Asset:    assetAddr,
		Amount:   big.NewInt(amount),
		Nonce:    nonce,
		Deadline: uint64(testNow.Unix()) + 3600,
		Referrer: referrerAddr,
	}
	env.ledger.Mint(env.user, in.Amount)
	require.NoError(t, env.ledger.ApproveAs(env.user, routerAddr, in.Amount))
	return in
}

func (env *testEnv) sign(t *testing.T, in *intent.DepositIntent) []byte {
	t.Helper()
	digest, err := env.verifier.Digest(in)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest.Bytes(), env.key)
	require.NoError(t, err)
	return sig
}

func (env *testEnv) balance(t *testing.T, account common.Address) *big.Int {
	t.Helper()
	b, err := env.ledger.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return b
}

func TestSubmit_ImmediateSettlement(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	id, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)
	require.Equal(t, in.ID(), id)

	// 10 bps of 10000 is 10, split 7 referrer / 3 protocol, 9990 forwarded.
	require.Equal(t, "0", env.balance(t, env.user).String())
	require.Equal(t, "7", env.balance(t, referrerAddr).String())
	require.Equal(t, "3", env.balance(t, treasuryAddr).String())
	require.Equal(t, "9990", env.balance(t, routerAddr).String())
	require.Equal(t, "9990", env.ledger.Allowance(routerAddr, vaultAddr).String())
	require.Equal(t, "9990", env.vault.UnitsOf(env.user).String())
	require.Equal(t, 1, env.vault.SettleNowCalls())

	record, err := env.engine.GetDeposit(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.DepositStatusSettled, record.Status)
	require.False(t, record.IsAsync)
	require.Empty(t, record.PendingRequestID)
	require.Equal(t, "9990", record.Amount)
	require.Equal(t, "7", record.ReferrerFee)
	require.Equal(t, "3", record.ProtocolFee)

	require.Equal(t, []EventType{EventIntentVerified, EventFeeCollected, EventDepositSettled}, env.sink.types())
}

func TestSubmit_QueuedAndClaimed(t *testing.T) {
	env := newTestEnv(t, false, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	id, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)

	record, err := env.engine.GetDeposit(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.DepositStatusQueued, record.Status)
	require.True(t, record.IsAsync)
	require.NotEmpty(t, record.PendingRequestID)
	require.Equal(t, 1, env.vault.PendingRequests())
	require.Equal(t, 0, env.vault.SettleNowCalls())
	require.Equal(t, "0", env.vault.UnitsOf(env.user).String())

	// Claim before the vault turns ready is refused, nothing changes.
	require.ErrorIs(t, env.engine.Claim(ctx, id), ErrVaultNotReady)
	require.Equal(t, 1, env.vault.PendingRequests())

	env.vault.SetReady(true)
	require.NoError(t, env.engine.Claim(ctx, id))

	record, err = env.engine.GetDeposit(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.DepositStatusClaimed, record.Status)
	require.NotNil(t, record.ClaimedAt)
	require.Equal(t, "9990", env.vault.UnitsOf(env.user).String())
	require.Equal(t, 0, env.vault.PendingRequests())

	require.ErrorIs(t, env.engine.Claim(ctx, id), ErrAlreadyClaimed)

	require.Equal(t, []EventType{EventIntentVerified, EventFeeCollected, EventDepositQueued, EventDepositClaimed}, env.sink.types())
}

func TestSubmit_ReplayRejected(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	sig := env.sign(t, in)
	_, err := env.engine.Submit(ctx, in, sig)
	require.NoError(t, err)

	// Byte-identical resubmission hits the executed-intent guard.
	_, err = env.engine.Submit(ctx, in, sig)
	require.ErrorIs(t, err, ErrAlreadyExecuted)

	// A fresh intent reusing the nonce has a different id but the same
	// burned (user, nonce) pair.
	other := env.newIntent(t, 5_000, 1)
	_, err = env.engine.Submit(ctx, other, env.sign(t, other))
	require.ErrorIs(t, err, ErrNonceAlreadyUsed)
}

func TestSubmit_DeadlineBoundary(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	expired := env.newIntent(t, 10_000, 1)
	expired.Deadline = uint64(testNow.Unix()) - 1
	_, err := env.engine.Submit(ctx, expired, env.sign(t, expired))
	require.ErrorIs(t, err, ErrIntentExpired)

	// The expired attempt never reached the nonce, so it is still free.
	exact := env.newIntent(t, 10_000, 1)
	exact.Deadline = uint64(testNow.Unix())
	_, err = env.engine.Submit(ctx, exact, env.sign(t, exact))
	require.NoError(t, err)
}

func TestSubmit_ZeroReferrerWithholdsShare(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	in.Referrer = common.Address{}
	_, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)

	// The referrer share is withheld in custody, not redirected.
	require.Equal(t, "3", env.balance(t, treasuryAddr).String())
	require.Equal(t, "9997", env.balance(t, routerAddr).String())
	require.Equal(t, "9990", env.vault.UnitsOf(env.user).String())

	var feeEvent *Event
	for i := range env.sink.events {
		if env.sink.events[i].Type == EventFeeCollected {
			feeEvent = &env.sink.events[i]
		}
	}
	require.NotNil(t, feeEvent)
	require.Equal(t, "7", feeEvent.ReferrerFee)
	require.Equal(t, "3", feeEvent.ProtocolFee)
}

func TestSubmit_FeesDisabled(t *testing.T) {
	fees := defaultFees()
	fees.Enabled = false
	env := newTestEnv(t, true, fees)
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	_, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)

	require.Equal(t, "0", env.balance(t, treasuryAddr).String())
	require.Equal(t, "0", env.balance(t, referrerAddr).String())
	require.Equal(t, "10000", env.vault.UnitsOf(env.user).String())
	require.Equal(t, []EventType{EventIntentVerified, EventDepositSettled}, env.sink.types())
}

func TestSubmit_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	zero := env.newIntent(t, 10_000, 1)
	zero.Amount = big.NewInt(0)
	_, err := env.engine.Submit(ctx, zero, env.sign(t, zero))
	require.ErrorIs(t, err, ErrZeroAmount)

	var nilAmount intent.DepositIntent
	nilAmount.User = env.user
	_, err = env.engine.Submit(ctx, &nilAmount, nil)
	require.ErrorIs(t, err, ErrZeroAmount)

	wrongVault := env.newIntent(t, 10_000, 2)
	wrongVault.Vault = common.HexToAddress("0xdead")
	_, err = env.engine.Submit(ctx, wrongVault, env.sign(t, wrongVault))
	require.ErrorIs(t, err, ErrInvalidVault)
}

func TestSubmit_BadSignature(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)

	strangerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest, err := env.verifier.Digest(in)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest.Bytes(), strangerKey)
	require.NoError(t, err)

	_, err = env.engine.Submit(ctx, in, sig)
	require.ErrorIs(t, err, intent.ErrInvalidSignature)

	_, err = env.engine.Submit(ctx, in, []byte{0x01})
	require.ErrorIs(t, err, intent.ErrMalformedSignature)

	// Failed verification consumes nothing.
	_, err = env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)
}

func TestSubmit_FailedPullBurnsNonce(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	require.NoError(t, env.ledger.ApproveAs(env.user, routerAddr, big.NewInt(0)))

	_, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	require.Equal(t, "10000", env.balance(t, env.user).String())

	_, err = env.engine.GetDeposit(ctx, in.ID())
	require.NoError(t, err)

	// The nonce was consumed before the pull and stays burned.
	require.NoError(t, env.ledger.ApproveAs(env.user, routerAddr, in.Amount))
	_, err = env.engine.Submit(ctx, in, env.sign(t, in))
	require.ErrorIs(t, err, ErrNonceAlreadyUsed)
}

// refusingLedger fails transfers to one address, to force a fee payout
// failure after the deposit already settled.
type refusingLedger struct {
	ledger.Ledger
	refuse common.Address
}

func (r *refusingLedger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if to == r.refuse {
		return ledger.ErrTransferFailed
	}
	return r.Ledger.Transfer(ctx, to, amount)
}

// failingVault errors on the settle or queue call to exercise the refund
// paths after the fund pull.
type failingVault struct {
	vault.Vault
	failSettle bool
	failQueue  bool
}

func (f *failingVault) SettleNow(ctx context.Context, amount *big.Int, receiver, referrer common.Address) (*big.Int, error) {
	if f.failSettle {
		return nil, errors.New("vault rejected settlement")
	}
	return f.Vault.SettleNow(ctx, amount, receiver, referrer)
}

func (f *failingVault) QueueRequest(ctx context.Context, amount *big.Int, controller, owner common.Address) (string, error) {
	if f.failQueue {
		return "", errors.New("vault rejected request")
	}
	return f.Vault.QueueRequest(ctx, amount, controller, owner)
}

func (env *testEnv) engineWith(t *testing.T, ldg ledger.Ledger, vlt vault.Vault) *Engine {
	t.Helper()
	eng, err := New(env.verifier, ldg, vlt, env.deposits, env.nonces, Config{
		Owner: ownerAddr,
		Self:  routerAddr,
		Vault: vaultAddr,
		Fees:  defaultFees(),
		Now:   func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return eng
}

func TestSubmit_RefundsGrossOnVaultFailure(t *testing.T) {
	for name, wrap := range map[string]failingVault{
		"settle fails": {failSettle: true},
		"queue fails":  {failQueue: true},
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, !wrap.failQueue, defaultFees())
			ctx := context.Background()

			wrapped := wrap
			wrapped.Vault = env.vault
			eng := env.engineWith(t, &ledger.BoundLedger{Mock: env.ledger, Caller: routerAddr}, &wrapped)

			in := env.newIntent(t, 10_000, 1)
			_, err := eng.Submit(ctx, in, env.sign(t, in))
			require.Error(t, err)

			// No fees were paid out yet, so the whole pull came back.
			require.Equal(t, "10000", env.balance(t, env.user).String())
			require.Equal(t, "0", env.balance(t, routerAddr).String())
			require.Equal(t, "0", env.balance(t, referrerAddr).String())
			require.Equal(t, "0", env.balance(t, treasuryAddr).String())

			record, err := eng.GetDeposit(ctx, in.ID())
			require.NoError(t, err)
			require.True(t, record.CreatedAt.IsZero())
		})
	}
}

func TestSubmit_PayoutFailureDoesNotUnwindSettlement(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	wrapped := &refusingLedger{
		Ledger: &ledger.BoundLedger{Mock: env.ledger, Caller: routerAddr},
		refuse: referrerAddr,
	}
	eng := env.engineWith(t, wrapped, env.vault)

	in := env.newIntent(t, 10_000, 1)
	id, err := eng.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)

	// The deposit settled; the unpayable referrer share stays in custody.
	require.Equal(t, "9990", env.vault.UnitsOf(env.user).String())
	require.Equal(t, "0", env.balance(t, referrerAddr).String())
	require.Equal(t, "3", env.balance(t, treasuryAddr).String())
	require.Equal(t, "9997", env.balance(t, routerAddr).String())

	record, err := eng.GetDeposit(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.DepositStatusSettled, record.Status)
	require.Equal(t, "7", record.ReferrerFee)
}

func TestClaim_Errors(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	require.ErrorIs(t, env.engine.Claim(ctx, common.HexToHash("0x01")), ErrDepositNotFound)

	in := env.newIntent(t, 10_000, 1)
	id, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)

	// Synchronous deposits have nothing to claim.
	require.ErrorIs(t, env.engine.Claim(ctx, id), ErrNotAsync)
}

func TestGetDeposit_AbsentIsZeroRecord(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())

	record, err := env.engine.GetDeposit(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.True(t, record.CreatedAt.IsZero())
}

func TestListDeposits(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	for nonce := uint64(1); nonce <= 3; nonce++ {
		in := env.newIntent(t, 1_000, nonce)
		_, err := env.engine.Submit(ctx, in, env.sign(t, in))
		require.NoError(t, err)
	}

	records, total, err := env.engine.ListDeposits(ctx, env.user, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, records, 2)

	records, _, err = env.engine.ListDeposits(ctx, env.user, 2, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestAdminOperations(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	stranger := common.HexToAddress("0xbeef")

	require.ErrorIs(t, env.engine.SetFeesEnabled(stranger, false), ErrNotOwner)
	require.NoError(t, env.engine.SetFeesEnabled(ownerAddr, false))
	require.False(t, env.engine.Fees().Enabled)

	require.ErrorIs(t, env.engine.SetTreasury(stranger, treasuryAddr), ErrNotOwner)
	require.ErrorIs(t, env.engine.SetTreasury(ownerAddr, common.Address{}), ErrInvalidTreasury)

	rotated := common.HexToAddress("0x0000000000000000000000000000000000000099")
	require.NoError(t, env.engine.SetTreasury(ownerAddr, rotated))
	require.Equal(t, rotated, env.engine.Fees().Treasury)
}

func TestTreasuryRotationAffectsNextSubmit(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	rotated := common.HexToAddress("0x0000000000000000000000000000000000000099")
	require.NoError(t, env.engine.SetTreasury(ownerAddr, rotated))

	in := env.newIntent(t, 10_000, 1)
	_, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)

	require.Equal(t, "0", env.balance(t, treasuryAddr).String())
	require.Equal(t, "3", env.balance(t, rotated).String())
}

func TestConcurrentSubmit_SingleWinner(t *testing.T) {
	env := newTestEnv(t, true, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	sig := env.sign(t, in)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.Submit(ctx, in, sig)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyExecuted)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, env.vault.SettleNowCalls())
	require.Equal(t, "0", env.balance(t, env.user).String())
}

func TestConcurrentClaim_SingleWinner(t *testing.T) {
	env := newTestEnv(t, false, defaultFees())
	ctx := context.Background()

	in := env.newIntent(t, 10_000, 1)
	id, err := env.engine.Submit(ctx, in, env.sign(t, in))
	require.NoError(t, err)
	env.vault.SetReady(true)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = env.engine.Claim(ctx, id)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyClaimed)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, "9990", env.vault.UnitsOf(env.user).String())
}
