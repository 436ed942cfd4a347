package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"intentrouter/internal/intent"
	"intentrouter/internal/ledger"
	"intentrouter/internal/metrics"
	"intentrouter/internal/models"
	"intentrouter/internal/repository"
	"intentrouter/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine orchestrates the full lifecycle of one verified intent: replay
// checks, deadline check, fund pull, vault-readiness branch, fee
// distribution, durable record creation and the later claim of queued
// deposits.
//
// Every Submit or Claim runs under one mutex, so concurrent calls for the
// same (user, nonce) or intent id serialize and exactly one succeeds; the
// rest observe the already-used state and fail deterministically.
type Engine struct {
	mu sync.Mutex

	verifier *intent.Verifier
	ledger   ledger.Ledger
	vault    vault.Vault
	deposits repository.DepositRepository
	nonces   repository.NonceRepository

	owner     common.Address
	self      common.Address // custody identity; controller of queued requests
	vaultAddr common.Address
	fees      FeeConfig

	sinks []EventSink
	now   func() time.Time
	log   *logrus.Entry
}

// Config wires an Engine.
type Config struct {
	Owner common.Address
	// Self is the engine's own ledger identity; pulled funds land here
	// before they are split and forwarded.
	Self  common.Address
	Vault common.Address
	Fees  FeeConfig

	// Now overrides the clock, mainly for deadline tests.
	Now func() time.Time
}

func New(
	verifier *intent.Verifier,
	ldg ledger.Ledger,
	vlt vault.Vault,
	deposits repository.DepositRepository,
	nonces repository.NonceRepository,
	cfg Config,
) (*Engine, error) {
	if err := cfg.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("fee config: %w", err)
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		verifier:  verifier,
		ledger:    ldg,
		vault:     vlt,
		deposits:  deposits,
		nonces:    nonces,
		owner:     cfg.Owner,
		self:      cfg.Self,
		vaultAddr: cfg.Vault,
		fees:      cfg.Fees,
		now:       now,
		log:       logrus.WithField("component", "engine"),
	}, nil
}

// AddSink registers an event sink. Not safe to call after the engine starts
// serving.
func (e *Engine) AddSink(sink EventSink) {
	e.sinks = append(e.sinks, sink)
}

// Submit verifies a signed intent, pulls the gross amount from the user,
// settles or queues the net amount depending on vault readiness and then
// distributes the fee split. Returns the deterministic intent id.
//
// The (user, nonce) pair is consumed before the fund pull, so a failed pull
// burns the nonce. That is deliberate: it closes the window where a
// concurrent resubmission could reuse the nonce while the first transfer is
// in flight.
func (e *Engine) Submit(ctx context.Context, in *intent.DepositIntent, signature []byte) (common.Hash, error) {
	start := time.Now()
	id, err := e.submit(ctx, in, signature)
	metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SubmitsTotal.WithLabelValues("error").Inc()
	}
	return id, err
}

func (e *Engine) submit(ctx context.Context, in *intent.DepositIntent, signature []byte) (common.Hash, error) {
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return common.Hash{}, ErrZeroAmount
	}
	if e.vaultAddr != (common.Address{}) && in.Vault != e.vaultAddr {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrInvalidVault, in.Vault.Hex())
	}

	// Signature errors from the verifier propagate unchanged.
	id, err := e.verifier.Verify(in, signature)
	if err != nil {
		return common.Hash{}, err
	}
	idHex := strings.ToLower(id.Hex())

	e.mu.Lock()
	defer e.mu.Unlock()

	// The intent id is the binding replay guard and is checked before the
	// nonce: two intents can collide on the id while differing in asset,
	// deadline or referrer.
	if _, err := e.deposits.GetByIntentID(ctx, idHex); err == nil {
		return common.Hash{}, ErrAlreadyExecuted
	} else if !errors.Is(err, repository.ErrNotFound) {
		return common.Hash{}, fmt.Errorf("lookup deposit: %w", err)
	}

	// Equal to the deadline still passes.
	if uint64(e.now().Unix()) > in.Deadline {
		return common.Hash{}, ErrIntentExpired
	}

	user := strings.ToLower(in.User.Hex())
	used, err := e.nonces.IsUsed(ctx, user, in.Nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce lookup: %w", err)
	}
	if used {
		return common.Hash{}, ErrNonceAlreadyUsed
	}
	// Consume the nonce before any external call. A failed pull below
	// leaves it burned.
	if err := e.nonces.MarkUsed(ctx, user, in.Nonce); err != nil {
		if errors.Is(err, repository.ErrNonceUsed) {
			return common.Hash{}, ErrNonceAlreadyUsed
		}
		return common.Hash{}, fmt.Errorf("mark nonce: %w", err)
	}

	ready, err := e.vault.ReadyForImmediateSettlement(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("vault readiness: %w", err)
	}

	fees := splitFees(in.Amount, e.fees)

	// Pull the gross amount into custody. Ledger sentinels
	// (InsufficientFunds/InsufficientAllowance/TransferFailed) propagate.
	if err := e.ledger.TransferFrom(ctx, in.User, e.self, in.Amount); err != nil {
		return common.Hash{}, err
	}

	// Fees are distributed only after the vault accepted the deposit, so a
	// failure at the approve or settle/queue step refunds the whole pull
	// and nothing needs to be clawed back.
	if err := e.ledger.Approve(ctx, in.Vault, fees.Net); err != nil {
		e.refund(ctx, in.User, in.Amount, idHex)
		return common.Hash{}, err
	}

	var requestID string
	if ready {
		if _, err := e.vault.SettleNow(ctx, fees.Net, in.User, in.Referrer); err != nil {
			e.refund(ctx, in.User, in.Amount, idHex)
			return common.Hash{}, fmt.Errorf("settle now: %w", err)
		}
	} else {
		requestID, err = e.vault.QueueRequest(ctx, fees.Net, e.self, in.User)
		if err != nil {
			e.refund(ctx, in.User, in.Amount, idHex)
			return common.Hash{}, fmt.Errorf("queue request: %w", err)
		}
	}

	if fees.Total.Sign() > 0 {
		// The deposit is settled at this point; a failed payout must not
		// unwind it. The share stays in custody until an operator moves it.
		//
		// A zero referrer forfeits its share: it is neither paid out nor
		// redirected to the treasury, it stays in engine custody.
		if in.Referrer != (common.Address{}) && fees.Referrer.Sign() > 0 {
			if err := e.ledger.Transfer(ctx, in.Referrer, fees.Referrer); err != nil {
				e.logStuckPayout(idHex, "referrer", in.Referrer, fees.Referrer, err)
			}
		}
		if fees.Protocol.Sign() > 0 {
			if err := e.ledger.Transfer(ctx, e.fees.Treasury, fees.Protocol); err != nil {
				e.logStuckPayout(idHex, "protocol", e.fees.Treasury, fees.Protocol, err)
			}
		}
	}

	record := &models.DepositRecord{
		IntentID:         idHex,
		User:             user,
		Vault:            strings.ToLower(in.Vault.Hex()),
		Asset:            strings.ToLower(in.Asset.Hex()),
		Amount:           fees.Net.String(),
		Referrer:         strings.ToLower(in.Referrer.Hex()),
		Nonce:            in.Nonce,
		IsAsync:          !ready,
		Status:           models.DepositStatusSettled,
		PendingRequestID: requestID,
		ReferrerFee:      fees.Referrer.String(),
		ProtocolFee:      fees.Protocol.String(),
		CreatedAt:        e.now().UTC(),
	}
	if !ready {
		record.Status = models.DepositStatusQueued
	}
	if err := e.deposits.Create(ctx, record); err != nil {
		// Funds already moved; surface the error loudly instead of trying
		// to unwind a completed settlement.
		e.log.WithFields(logrus.Fields{
			"intent_id": idHex,
			"user":      user,
		}).WithError(err).Error("settlement succeeded but record creation failed")
		return common.Hash{}, fmt.Errorf("persist deposit record: %w", err)
	}

	e.emit(Event{
		Type:     EventIntentVerified,
		IntentID: idHex,
		User:     user,
		Vault:    record.Vault,
		Asset:    record.Asset,
		Amount:   in.Amount.String(),
	})
	if fees.Total.Sign() > 0 {
		// Emitted with the full computed split even when the referrer
		// share was withheld for a zero referrer.
		e.emit(Event{
			Type:        EventFeeCollected,
			IntentID:    idHex,
			User:        user,
			ReferrerFee: fees.Referrer.String(),
			ProtocolFee: fees.Protocol.String(),
		})
		feeTotal, _ := new(big.Float).SetInt(fees.Total).Float64()
		metrics.FeesCollectedTotal.Add(feeTotal)
	}
	if ready {
		metrics.SubmitsTotal.WithLabelValues("settled").Inc()
		e.emit(Event{
			Type:     EventDepositSettled,
			IntentID: idHex,
			User:     user,
			Vault:    record.Vault,
			Amount:   fees.Net.String(),
		})
	} else {
		metrics.SubmitsTotal.WithLabelValues("queued").Inc()
		metrics.PendingClaims.Inc()
		e.emit(Event{
			Type:      EventDepositQueued,
			IntentID:  idHex,
			User:      user,
			Vault:     record.Vault,
			Amount:    fees.Net.String(),
			RequestID: requestID,
		})
	}

	e.log.WithFields(logrus.Fields{
		"intent_id": idHex,
		"user":      user,
		"amount":    in.Amount.String(),
		"net":       fees.Net.String(),
		"async":     !ready,
	}).Info("deposit submitted")

	return id, nil
}

// Claim finalizes a previously queued deposit once the vault is ready.
// Exactly one claim across any number of concurrent attempts performs the
// finalize call; the rest fail with AlreadyClaimed.
func (e *Engine) Claim(ctx context.Context, intentID common.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idHex := strings.ToLower(intentID.Hex())

	record, err := e.deposits.GetByIntentID(ctx, idHex)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrDepositNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup deposit: %w", err)
	}
	if !record.IsAsync {
		return ErrNotAsync
	}
	if record.Status == models.DepositStatusClaimed {
		return ErrAlreadyClaimed
	}

	ready, err := e.vault.ReadyForImmediateSettlement(ctx)
	if err != nil {
		return fmt.Errorf("vault readiness: %w", err)
	}
	if !ready {
		return ErrVaultNotReady
	}

	if err := e.vault.FinalizeQueuedRequest(ctx, record.PendingRequestID); err != nil {
		return fmt.Errorf("finalize queued request: %w", err)
	}

	if err := e.deposits.MarkClaimed(ctx, idHex, e.now().UTC()); err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}

	metrics.ClaimsTotal.Inc()
	metrics.PendingClaims.Dec()
	e.emit(Event{
		Type:     EventDepositClaimed,
		IntentID: idHex,
		User:     record.User,
		Vault:    record.Vault,
		Amount:   record.Amount,
	})

	e.log.WithFields(logrus.Fields{
		"intent_id": idHex,
		"user":      record.User,
	}).Info("queued deposit claimed")

	return nil
}

// GetDeposit returns the deposit record for an intent id, or a zero record
// when none exists. Callers detect absence by the zero CreatedAt.
func (e *Engine) GetDeposit(ctx context.Context, intentID common.Hash) (models.DepositRecord, error) {
	record, err := e.deposits.GetByIntentID(ctx, strings.ToLower(intentID.Hex()))
	if errors.Is(err, repository.ErrNotFound) {
		return models.DepositRecord{}, nil
	}
	if err != nil {
		return models.DepositRecord{}, err
	}
	return *record, nil
}

// ListDeposits returns a user's deposit records, newest first.
func (e *Engine) ListDeposits(ctx context.Context, user common.Address, page, limit int) ([]*models.DepositRecord, int64, error) {
	return e.deposits.FindByUser(ctx, strings.ToLower(user.Hex()), page, limit)
}

// SetFeesEnabled toggles fee collection. Owner only.
func (e *Engine) SetFeesEnabled(caller common.Address, enabled bool) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fees.Enabled = enabled
	e.log.WithField("enabled", enabled).Info("fees toggled")
	return nil
}

// SetTreasury rotates the protocol fee recipient. Owner only; the zero
// address is rejected.
func (e *Engine) SetTreasury(caller, treasury common.Address) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	if treasury == (common.Address{}) {
		return ErrInvalidTreasury
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fees.Treasury = treasury
	e.log.WithField("treasury", treasury.Hex()).Info("treasury rotated")
	return nil
}

// Fees returns a snapshot of the current fee configuration.
func (e *Engine) Fees() FeeConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fees
}

func (e *Engine) logStuckPayout(intentID, share string, to common.Address, amount *big.Int, err error) {
	e.log.WithFields(logrus.Fields{
		"intent_id": intentID,
		"share":     share,
		"to":        strings.ToLower(to.Hex()),
		"amount":    amount.String(),
	}).WithError(err).Error("fee payout failed, share held in custody")
}

func (e *Engine) refund(ctx context.Context, user common.Address, amount *big.Int, intentID string) {
	if amount.Sign() <= 0 {
		return
	}
	if err := e.ledger.Transfer(ctx, user, amount); err != nil {
		// Funds are stuck in custody; operator intervention required.
		e.log.WithFields(logrus.Fields{
			"intent_id": intentID,
			"user":      strings.ToLower(user.Hex()),
			"amount":    amount.String(),
		}).WithError(err).Error("refund after failed settlement also failed")
	}
}

func (e *Engine) emit(event Event) {
	event.ID = uuid.NewString()
	event.Timestamp = e.now().UTC()
	for _, sink := range e.sinks {
		sink.Publish(event)
	}
}
