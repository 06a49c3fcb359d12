package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
	// TokenTypeAction scopes one follow-up privileged biometric action (for example
	// approving a reset). Short-lived; there is no revocation list.
	TokenTypeAction TokenType = "action"
)

// Claims are the only supported JWT claims shape for this service.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
	// Action is set only on action tokens.
	Action string `json:"action,omitempty"`
}

// ActionClaims is the decoded view of an action token.
type ActionClaims struct {
	TokenID   string
	UserID    string
	Role      string
	Action    string
	IssuedAt  int64
	ExpiresAt int64
}
