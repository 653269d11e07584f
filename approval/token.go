package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultTokenTTL is how long an issued approval token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// DefaultIssuer is the issuer claim of approval tokens.
const DefaultIssuer = "phaseflow"

// TokenConfig holds configuration for approval token issue and validation.
type TokenConfig struct {
	// Secret is the HMAC signing key (must be at least 32 bytes).
	Secret []byte

	// Issuer defaults to DefaultIssuer.
	Issuer string

	// TTL defaults to DefaultTokenTTL.
	TTL time.Duration
}

func (c TokenConfig) issuer() string {
	if c.Issuer == "" {
		return DefaultIssuer
	}
	return c.Issuer
}

func (c TokenConfig) ttl() time.Duration {
	if c.TTL == 0 {
		return DefaultTokenTTL
	}
	return c.TTL
}

// Claims binds a token to one phase of one feature. Subject is the
// approver.
type Claims struct {
	jwt.RegisteredClaims
	Feature string `json:"feat"`
	Phase   int    `json:"phase"`
}

// Issue creates a signed approval token for a phase.
func Issue(cfg TokenConfig, feature string, phase int, approver string) (string, error) {
	if len(cfg.Secret) < 32 {
		return "", ErrSecretTooShort
	}
	if feature == "" || phase < 1 {
		return "", fmt.Errorf("issue token: feature and phase are required")
	}

	tokenID, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.issuer(),
			Subject:   approver,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
			ID:        tokenID,
		},
		Feature: feature,
		Phase:   phase,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// parseToken validates signature, expiry and issuer.
func parseToken(cfg TokenConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return cfg.Secret, nil
	}, jwt.WithIssuer(cfg.issuer()))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Feature == "" || claims.Phase < 1 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
