package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// authService implements the AuthService interface
type authService struct {
	authAdapter driven.AuthAdapter
	tokenTTL    time.Duration
	now         func() time.Time
}

// NewAuthService creates a new AuthService. tokenTTL defaults to 24h.
func NewAuthService(authAdapter driven.AuthAdapter, tokenTTL time.Duration) driving.AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &authService{
		authAdapter: authAdapter,
		tokenTTL:    tokenTTL,
		now:         time.Now,
	}
}

// ValidateToken validates a bearer token and returns the auth context
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	claims, err := s.authAdapter.ParseToken(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	if claims.ExpiresAt != 0 && s.now().Unix() > claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}
	if claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.AuthContext{
		Subject: claims.Subject,
		Scope:   claims.Scope,
		Method:  domain.AuthMethodJWT,
	}, nil
}

// ValidateAPIKey checks a static API key
func (s *authService) ValidateAPIKey(ctx context.Context, key string) (*domain.AuthContext, error) {
	if key == "" || !s.authAdapter.VerifyAPIKey(key) {
		return nil, domain.ErrUnauthorized
	}
	return &domain.AuthContext{
		Subject: "api-key",
		Method:  domain.AuthMethodAPIKey,
	}, nil
}

// IssueToken signs a bearer token for subject
func (s *authService) IssueToken(ctx context.Context, subject, scope string, ttl time.Duration) (string, *domain.TokenClaims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	if ttl < 0 {
		return "", nil, fmt.Errorf("%w: ttl must not be negative", domain.ErrInvalidInput)
	}
	if ttl == 0 {
		ttl = s.tokenTTL
	}

	now := s.now()
	claims := &domain.TokenClaims{
		Subject:   subject,
		Scope:     strings.TrimSpace(scope),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	token, err := s.authAdapter.GenerateToken(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}
