package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

func authConfig(secret string) *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = secret
	cfg.Auth.TokenTTL = time.Hour
	return cfg
}

func TestAuthService_RoundTrip(t *testing.T) {
	service := NewAuthService(authConfig("test-secret"), testLogger())

	token, err := service.GenerateToken("ops")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, AdminRole, claims.Role)
}

func TestAuthService_Rejects(t *testing.T) {
	service := NewAuthService(authConfig("test-secret"), testLogger())

	sign := func(claims *models.AdminClaims, secret string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(&models.AdminClaims{Role: AdminRole, RegisteredClaims: valid}, "other-secret")},
		{"wrong role", sign(&models.AdminClaims{Role: "viewer", RegisteredClaims: valid}, "test-secret")},
		{"expired", sign(&models.AdminClaims{Role: AdminRole, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}}, "test-secret")},
		{"wrong issuer", sign(&models.AdminClaims{Role: AdminRole, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}, "test-secret")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestAuthService_Disabled(t *testing.T) {
	service := NewAuthService(authConfig(""), testLogger())

	assert.False(t, service.Enabled())
	_, err := service.GenerateToken("ops")
	assert.Error(t, err)
	_, err = service.ValidateToken("a.b.c")
	assert.Error(t, err)
}
