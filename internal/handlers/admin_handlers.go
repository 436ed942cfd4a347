package handlers

import (
	"net/http"

	"intentrouter/internal/dto"
	"intentrouter/internal/engine"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the owner-gated fee configuration.
type AdminHandler struct {
	engine *engine.Engine
}

func NewAdminHandler(eng *engine.Engine) *AdminHandler {
	return &AdminHandler{engine: eng}
}

// callerAddress resolves the acting identity set by the auth middleware.
func callerAddress(c *gin.Context) common.Address {
	if v, ok := c.Get("admin_address"); ok {
		if s, ok := v.(string); ok {
			return common.HexToAddress(s)
		}
	}
	return common.Address{}
}

// SetFeesEnabledHandler toggles fee collection.
// PUT /api/admin/fees
func (h *AdminHandler) SetFeesEnabledHandler(c *gin.Context) {
	var req dto.SetFeesEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if err := h.engine.SetFeesEnabled(callerAddress(c), *req.Enabled); err != nil {
		respondWithEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"fees_enabled": *req.Enabled})
}

// SetTreasuryHandler rotates the protocol fee recipient.
// PUT /api/admin/treasury
func (h *AdminHandler) SetTreasuryHandler(c *gin.Context) {
	var req dto.SetTreasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if !common.IsHexAddress(req.Treasury) {
		respondWithError(c, http.StatusBadRequest, "invalid_address", "invalid treasury address", req.Treasury)
		return
	}

	if err := h.engine.SetTreasury(callerAddress(c), common.HexToAddress(req.Treasury)); err != nil {
		respondWithEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"treasury": req.Treasury})
}

// GetFeesHandler returns the live fee configuration.
// GET /api/admin/fees
func (h *AdminHandler) GetFeesHandler(c *gin.Context) {
	fees := h.engine.Fees()
	c.JSON(http.StatusOK, gin.H{
		"enabled":            fees.Enabled,
		"treasury":           fees.Treasury.Hex(),
		"fee_bps":            fees.FeeBps,
		"referrer_share_bps": fees.ReferrerShareBps,
		"protocol_share_bps": fees.ProtocolShareBps,
	})
}
