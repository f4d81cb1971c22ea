package mocks

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure MockAuthAdapter implements AuthAdapter
var _ driven.AuthAdapter = (*MockAuthAdapter)(nil)

// MockAuthAdapter encodes tokens as base64 JSON and compares API keys in
// plain text. NOT secure - only for testing.
type MockAuthAdapter struct {
	APIKeys []string
}

// NewMockAuthAdapter creates a new MockAuthAdapter accepting apiKeys
func NewMockAuthAdapter(apiKeys ...string) *MockAuthAdapter {
	return &MockAuthAdapter{APIKeys: apiKeys}
}

// GenerateToken creates a base64-encoded JSON token from claims
func (m *MockAuthAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ParseToken decodes a base64-encoded JSON token and returns claims
func (m *MockAuthAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	var claims domain.TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}

	return &claims, nil
}

// VerifyAPIKey compares key against the configured keys directly
func (m *MockAuthAdapter) VerifyAPIKey(key string) bool {
	for _, k := range m.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}
