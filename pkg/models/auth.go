package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims are carried by tokens allowed to call the admin endpoints.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
