package dto

import "time"

// SubmitDepositRequest carries a signed deposit intent.
type SubmitDepositRequest struct {
	User     string `json:"user" binding:"required"`
	Vault    string `json:"vault" binding:"required"`
	Asset    string `json:"asset" binding:"required"`
	Amount   string `json:"amount" binding:"required"` // decimal string, base units
	Nonce    uint64 `json:"nonce"`
	Deadline uint64 `json:"deadline" binding:"required"` // unix seconds
	Referrer string `json:"referrer"`
	// Signature is the 65-byte (r, s, v) EIP-712 signature, 0x-prefixed hex.
	Signature string `json:"signature" binding:"required"`
}

// SubmitDepositResponse returns the deterministic intent id.
type SubmitDepositResponse struct {
	IntentID string `json:"intent_id"`
}

// DepositResponse mirrors one deposit record.
type DepositResponse struct {
	IntentID         string     `json:"intent_id"`
	User             string     `json:"user"`
	Vault            string     `json:"vault"`
	Asset            string     `json:"asset"`
	Amount           string     `json:"amount"`
	Referrer         string     `json:"referrer,omitempty"`
	Nonce            uint64     `json:"nonce"`
	IsAsync          bool       `json:"is_async"`
	Status           string     `json:"status"`
	PendingRequestID string     `json:"pending_request_id,omitempty"`
	ReferrerFee      string     `json:"referrer_fee,omitempty"`
	ProtocolFee      string     `json:"protocol_fee,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
}
