package domain

// AuthMethod records how a request was authenticated
type AuthMethod string

const (
	AuthMethodJWT    AuthMethod = "jwt"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// AuthContext contains the authenticated caller for request context
type AuthContext struct {
	Subject string     `json:"subject"`
	Scope   string     `json:"scope,omitempty"`
	Method  AuthMethod `json:"method"`
}

// CanAccessScope reports whether the caller may act on items in ownerScope.
// An empty caller scope is unrestricted.
func (a *AuthContext) CanAccessScope(ownerScope string) bool {
	return a.Scope == "" || a.Scope == ownerScope
}

// TokenClaims represents the JWT token payload
type TokenClaims struct {
	Subject   string `json:"sub"`
	Scope     string `json:"scope,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
