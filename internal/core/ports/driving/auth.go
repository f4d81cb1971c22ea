package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// AuthService authenticates API callers
type AuthService interface {
	// ValidateToken validates a bearer token and returns the auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// ValidateAPIKey checks a static API key and returns an unrestricted auth context
	ValidateAPIKey(ctx context.Context, key string) (*domain.AuthContext, error)

	// IssueToken signs a bearer token for subject, restricted to scope when non-empty.
	// A zero ttl uses the service default.
	IssueToken(ctx context.Context, subject, scope string, ttl time.Duration) (string, *domain.TokenClaims, error)
}
