package handlers

import (
	"fmt"
	"net/http"
	"time"

	"intentrouter/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenTTL = 12 * time.Hour

// AdminAuthHandler issues and validates admin JWTs. Login requires the
// configured password (bcrypt hash) plus a TOTP code.
type AdminAuthHandler struct {
	jwtSecret    []byte
	passwordHash string
	totpSecret   string
	// address is the owner identity admin tokens act as.
	address string
}

// AdminJWTClaims admin JWT claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	jwt.RegisteredClaims
}

func NewAdminAuthHandler(jwtSecret, passwordHash, totpSecret, address string) *AdminAuthHandler {
	if jwtSecret == "" || passwordHash == "" || totpSecret == "" {
		logrus.Warn("admin auth not fully configured; admin login will be rejected")
	}
	return &AdminAuthHandler{
		jwtSecret:    []byte(jwtSecret),
		passwordHash: passwordHash,
		totpSecret:   totpSecret,
		address:      address,
	}
}

// AdminLoginHandler verifies password + TOTP and issues a JWT.
// POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if len(h.jwtSecret) == 0 || h.passwordHash == "" || h.totpSecret == "" {
		c.JSON(http.StatusInternalServerError, dto.AdminLoginResponse{
			Success: false,
			Message: "server misconfiguration: admin auth not configured",
		})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if req.Username != "admin" ||
		bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)) != nil ||
		!totp.Validate(req.TOTPCode, h.totpSecret) {
		logrus.WithField("username", req.Username).Warn("admin login rejected")
		c.JSON(http.StatusUnauthorized, dto.AdminLoginResponse{
			Success: false,
			Message: "invalid credentials",
		})
		return
	}

	now := time.Now()
	claims := AdminJWTClaims{
		Username: req.Username,
		Address:  h.address,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "intentrouter",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.AdminLoginResponse{
			Success: false,
			Message: "failed to sign token",
		})
		return
	}

	c.JSON(http.StatusOK, dto.AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "ok",
	})
}

// ValidateToken parses and checks an admin JWT.
func (h *AdminAuthHandler) ValidateToken(tokenString string) (*AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminJWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
