package driven

import "github.com/custodia-labs/sercha-ingest/internal/core/domain"

// AuthAdapter handles authentication cryptographic operations.
type AuthAdapter interface {
	// GenerateToken signs claims into a bearer token
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a bearer token and returns its claims
	ParseToken(token string) (*domain.TokenClaims, error)

	// VerifyAPIKey reports whether key matches one of the configured key hashes
	VerifyAPIKey(key string) bool
}
