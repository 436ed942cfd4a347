package handlers

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"intentrouter/internal/dto"
	"intentrouter/internal/engine"
	"intentrouter/internal/intent"
	"intentrouter/internal/ledger"
	"intentrouter/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// DepositHandler serves the deposit intent API.
type DepositHandler struct {
	engine *engine.Engine
}

func NewDepositHandler(eng *engine.Engine) *DepositHandler {
	return &DepositHandler{engine: eng}
}

// SubmitHandler accepts a signed deposit intent.
// POST /api/v1/deposits
func (h *DepositHandler) SubmitHandler(c *gin.Context) {
	var req dto.SubmitDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	for field, value := range map[string]string{"user": req.User, "vault": req.Vault, "asset": req.Asset} {
		if !common.IsHexAddress(value) {
			respondWithError(c, http.StatusBadRequest, "invalid_address", "invalid "+field+" address", value)
			return
		}
	}
	if req.Referrer != "" && !common.IsHexAddress(req.Referrer) {
		respondWithError(c, http.StatusBadRequest, "invalid_address", "invalid referrer address", req.Referrer)
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		respondWithError(c, http.StatusBadRequest, "invalid_amount", "amount must be a decimal string", req.Amount)
		return
	}

	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_signature_encoding", "signature must be 0x-prefixed hex", nil)
		return
	}

	in := &intent.DepositIntent{
		User:     common.HexToAddress(req.User),
		Vault:    common.HexToAddress(req.Vault),
		Asset:    common.HexToAddress(req.Asset),
		Amount:   amount,
		Nonce:    req.Nonce,
		Deadline: req.Deadline,
		Referrer: common.HexToAddress(req.Referrer),
	}

	intentID, err := h.engine.Submit(c.Request.Context(), in, signature)
	if err != nil {
		respondWithEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitDepositResponse{IntentID: intentID.Hex()})
}

// ClaimHandler finalizes a queued deposit.
// POST /api/v1/deposits/:intentId/claim
func (h *DepositHandler) ClaimHandler(c *gin.Context) {
	intentID, ok := parseIntentID(c)
	if !ok {
		return
	}

	if err := h.engine.Claim(c.Request.Context(), intentID); err != nil {
		respondWithEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"intent_id": intentID.Hex(), "status": string(models.DepositStatusClaimed)})
}

// GetDepositHandler retrieves one deposit record.
// GET /api/v1/deposits/:intentId
func (h *DepositHandler) GetDepositHandler(c *gin.Context) {
	intentID, ok := parseIntentID(c)
	if !ok {
		return
	}

	record, err := h.engine.GetDeposit(c.Request.Context(), intentID)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "query_failed", "failed to query deposit", err.Error())
		return
	}
	if record.CreatedAt.IsZero() {
		respondWithError(c, http.StatusNotFound, "deposit_not_found", "no deposit for intent id", intentID.Hex())
		return
	}

	c.JSON(http.StatusOK, toDepositResponse(&record))
}

// ListDepositsHandler pages through a user's deposits, newest first.
// GET /api/v1/deposits?user=0x..&page=1&limit=20
func (h *DepositHandler) ListDepositsHandler(c *gin.Context) {
	user := c.Query("user")
	if !common.IsHexAddress(user) {
		respondWithError(c, http.StatusBadRequest, "invalid_address", "invalid user address", user)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, total, err := h.engine.ListDeposits(c.Request.Context(), common.HexToAddress(user), page, limit)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "query_failed", "failed to list deposits", err.Error())
		return
	}

	deposits := make([]dto.DepositResponse, 0, len(records))
	for _, record := range records {
		deposits = append(deposits, toDepositResponse(record))
	}

	c.JSON(http.StatusOK, gin.H{
		"deposits": deposits,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func parseIntentID(c *gin.Context) (common.Hash, bool) {
	raw := c.Param("intentId")
	if len(raw) != 66 || raw[:2] != "0x" {
		respondWithError(c, http.StatusBadRequest, "invalid_intent_id", "intent id must be a 32-byte 0x hash", raw)
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

func toDepositResponse(record *models.DepositRecord) dto.DepositResponse {
	return dto.DepositResponse{
		IntentID:         record.IntentID,
		User:             record.User,
		Vault:            record.Vault,
		Asset:            record.Asset,
		Amount:           record.Amount,
		Referrer:         record.Referrer,
		Nonce:            record.Nonce,
		IsAsync:          record.IsAsync,
		Status:           string(record.Status),
		PendingRequestID: record.PendingRequestID,
		ReferrerFee:      record.ReferrerFee,
		ProtocolFee:      record.ProtocolFee,
		CreatedAt:        record.CreatedAt,
		ClaimedAt:        record.ClaimedAt,
	}
}

// respondWithEngineError maps settlement sentinels to HTTP statuses.
func respondWithEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrInvalidVault),
		errors.Is(err, engine.ErrIntentExpired),
		errors.Is(err, intent.ErrMalformedSignature),
		errors.Is(err, intent.ErrRecoveryFailure):
		respondWithError(c, http.StatusBadRequest, "rejected", err.Error(), nil)
	case errors.Is(err, intent.ErrInvalidSignature):
		respondWithError(c, http.StatusUnauthorized, "invalid_signature", err.Error(), nil)
	case errors.Is(err, engine.ErrNonceAlreadyUsed),
		errors.Is(err, engine.ErrAlreadyExecuted),
		errors.Is(err, engine.ErrAlreadyClaimed):
		respondWithError(c, http.StatusConflict, "duplicate", err.Error(), nil)
	case errors.Is(err, engine.ErrDepositNotFound):
		respondWithError(c, http.StatusNotFound, "deposit_not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrNotAsync):
		respondWithError(c, http.StatusUnprocessableEntity, "not_async", err.Error(), nil)
	case errors.Is(err, engine.ErrVaultNotReady):
		respondWithError(c, http.StatusServiceUnavailable, "vault_not_ready", err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientAllowance):
		respondWithError(c, http.StatusUnprocessableEntity, "funds_rejected", err.Error(), nil)
	case errors.Is(err, ledger.ErrTransferFailed):
		respondWithError(c, http.StatusBadGateway, "transfer_failed", err.Error(), nil)
	case errors.Is(err, engine.ErrNotOwner):
		respondWithError(c, http.StatusForbidden, "not_owner", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidTreasury):
		respondWithError(c, http.StatusBadRequest, "invalid_treasury", err.Error(), nil)
	default:
		respondWithError(c, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}
