package dto

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// SetFeesEnabledRequest toggles fee collection.
type SetFeesEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetTreasuryRequest rotates the protocol fee recipient.
type SetTreasuryRequest struct {
	Treasury string `json:"treasury" binding:"required"`
}
