package models

import (
	"time"
)

// Deposit lifecycle status.
type DepositStatus string

const (
	DepositStatusSettled DepositStatus = "settled" // synchronous path, terminal
	DepositStatusQueued  DepositStatus = "queued"  // asynchronous path, waiting for claim
	DepositStatusClaimed DepositStatus = "claimed" // asynchronous path, terminal
)

// DepositRecord is the durable outcome of one successfully verified intent.
// Immutable after creation except for the queued -> claimed transition.
// The primary key is the deterministic intent id (0x-prefixed keccak hash).
type DepositRecord struct {
	IntentID string        `json:"intent_id" gorm:"primaryKey;size:66"`
	User     string        `json:"user" gorm:"not null;size:42;index"`
	Vault    string        `json:"vault" gorm:"not null;size:42"`
	Asset    string        `json:"asset" gorm:"not null;size:42"`
	Amount   string        `json:"amount" gorm:"not null;size:78"` // net-of-fee amount forwarded to the vault
	Referrer string        `json:"referrer" gorm:"size:42"`
	Nonce    uint64        `json:"nonce" gorm:"not null"`
	IsAsync  bool          `json:"is_async" gorm:"not null"`
	Status   DepositStatus `json:"status" gorm:"not null;size:20;index"`

	// PendingRequestID is set while a queued deposit waits for its claim
	// and cleared when the claim finalizes.
	PendingRequestID string `json:"pending_request_id,omitempty" gorm:"size:66"`

	ReferrerFee string `json:"referrer_fee" gorm:"size:78"`
	ProtocolFee string `json:"protocol_fee" gorm:"size:78"`

	CreatedAt time.Time  `json:"created_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// TableName specifies the table name for DepositRecord
func (DepositRecord) TableName() string {
	return "deposit_records"
}

// UsedNonce marks one (user, nonce) pair as consumed. Write-once, never
// reset: a nonce burned by a failed fund pull stays burned.
type UsedNonce struct {
	User      string    `json:"user" gorm:"primaryKey;size:42"`
	Nonce     uint64    `json:"nonce" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for UsedNonce
func (UsedNonce) TableName() string {
	return "used_nonces"
}
