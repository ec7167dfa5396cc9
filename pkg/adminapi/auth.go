package adminapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for bearer-token validation.
var (
	ErrInvalidToken        = errors.New("adminapi: invalid token")
	ErrExpiredToken        = errors.New("adminapi: token has expired")
	ErrInvalidSecretLength = errors.New("adminapi: JWT secret must be at least 32 characters")
)

// Claims identifies the bearer of an admin-API token. There is a single
// role: holding a validly-signed token is itself the authorization, unlike
// the per-user roles of a full control plane.
type Claims struct {
	jwt.RegisteredClaims

	// Subject-style identifier for the principal the token was minted for
	// (an operator name or automation identity), carried through to logs.
	Principal string `json:"principal"`
}

// JWTConfig configures the admin API's bearer-token signing and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "dlogd".
	Issuer string

	// TokenDuration is the lifetime of minted tokens. Default: 1 hour.
	TokenDuration time.Duration
}

// JWTService mints and validates admin-API bearer tokens. Unlike the
// access/refresh pair of a user-facing login flow, the admin API has no
// login endpoint: tokens are minted out-of-band (by dlogctl token create,
// run by an operator who already holds the signing secret) and presented
// as a single short-lived bearer credential.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a JWTService, applying defaults for unset fields.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "dlogd"
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = time.Hour
	}
	return &JWTService{config: config}, nil
}

// MintToken creates a signed bearer token for principal.
func (s *JWTService) MintToken(principal string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.TokenDuration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Principal: principal,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("adminapi: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a bearer token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
