package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const (
	AdminRole   = "admin"
	tokenIssuer = "github.com/temcen/shoprec"
)

// AuthService issues and checks the HS256 tokens guarding the admin API.
type AuthService struct {
	config    *config.Config
	logger    *logrus.Logger
	jwtSecret []byte
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger) *AuthService {
	return &AuthService{
		config:    cfg,
		logger:    logger,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
	}
}

// Enabled reports whether a signing secret is configured. Without one the
// admin API is not served.
func (s *AuthService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

func (s *AuthService) GenerateToken(subject string) (*models.TokenResponse, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("no JWT secret configured")
	}

	now := time.Now()
	expiresAt := now.Add(s.config.Auth.TokenTTL)
	claims := &models.AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &models.TokenResponse{Token: tokenString, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("no JWT secret configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Role != AdminRole {
		return nil, fmt.Errorf("role %q is not allowed", claims.Role)
	}

	return claims, nil
}
