package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Adapter implements AuthAdapter
var _ driven.AuthAdapter = (*Adapter)(nil)

// jwtClaims wraps domain.TokenClaims for JWT compatibility
type jwtClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Adapter signs bearer tokens with HS256 and checks API keys against bcrypt hashes
type Adapter struct {
	jwtSecret    []byte
	apiKeyHashes [][]byte
	bcryptCost   int
}

// NewAdapter creates a new auth adapter with the given JWT secret and
// bcrypt hashes of the accepted API keys
func NewAdapter(jwtSecret string, apiKeyHashes ...string) *Adapter {
	return NewAdapterWithCost(jwtSecret, bcrypt.DefaultCost, apiKeyHashes...)
}

// NewAdapterWithCost creates a new auth adapter with custom bcrypt cost
func NewAdapterWithCost(jwtSecret string, bcryptCost int, apiKeyHashes ...string) *Adapter {
	hashes := make([][]byte, 0, len(apiKeyHashes))
	for _, h := range apiKeyHashes {
		if h != "" {
			hashes = append(hashes, []byte(h))
		}
	}
	return &Adapter{
		jwtSecret:    []byte(jwtSecret),
		apiKeyHashes: hashes,
		bcryptCost:   bcryptCost,
	}
}

// HashAPIKey generates the bcrypt hash an operator stores in configuration
func (a *Adapter) HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: api key is empty", domain.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), a.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether key matches one of the configured hashes
func (a *Adapter) VerifyAPIKey(key string) bool {
	if key == "" {
		return false
	}
	for _, hash := range a.apiKeyHashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// GenerateToken creates a signed JWT from domain claims
func (a *Adapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", fmt.Errorf("%w: jwt secret is not configured", domain.ErrInvalidInput)
	}

	jc := jwtClaims{
		Scope: claims.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(time.Unix(claims.IssuedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(claims.ExpiresAt, 0)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jc)
	return token.SignedString(a.jwtSecret)
}

// ParseToken validates a JWT and extracts domain claims.
// Expired tokens return domain.ErrTokenExpired, anything else unusable
// returns domain.ErrTokenInvalid.
func (a *Adapter) ParseToken(tokenString string) (*domain.TokenClaims, error) {
	if len(a.jwtSecret) == 0 {
		return nil, domain.ErrTokenInvalid
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}

	result := &domain.TokenClaims{
		Subject: claims.Subject,
		Scope:   claims.Scope,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return result, nil
}
