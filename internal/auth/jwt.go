package auth

import (
	"errors"
	"fmt"
	"time"

	"erlessed-biometric/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers bad signatures, wrong token types, missing claims and expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// DefaultActionTokenTTL is the lifetime of an action token when config leaves it unset.
const DefaultActionTokenTTL = 15 * time.Minute

type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	actionTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	actionTTL := cfg.ActionTokenTTL
	if actionTTL <= 0 {
		actionTTL = DefaultActionTokenTTL
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	return &Manager{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		audience:  cfg.JWTAudience,
		accessTTL: accessTTL,
		actionTTL: actionTTL,
	}, nil
}

/* ===================== ISSUE TOKENS ===================== */

// IssueAccess signs an access token carrying the caller identity.
func (m *Manager) IssueAccess(now time.Time, userID, role string) (string, error) {
	if userID == "" || role == "" {
		return "", errors.New("user_id and role are required")
	}
	return m.issue(now, TokenTypeAccess, userID, role, "", m.accessTTL)
}

// IssueActionToken signs a short-lived token authorizing one privileged action.
func (m *Manager) IssueActionToken(now time.Time, userID, role, action string) (string, error) {
	if userID == "" || role == "" || action == "" {
		return "", errors.New("user_id, role and action are required")
	}
	return m.issue(now, TokenTypeAction, userID, role, action, m.actionTTL)
}

// ActionTokenTTL is the configured action token lifetime.
func (m *Manager) ActionTokenTTL() time.Duration { return m.actionTTL }

/* ===================== VERIFY TOKEN ===================== */

// Verify checks signature, issuer/audience, iat/exp against now, and the token type.
// Access tokens get 30s of clock-skew leeway; action tokens get none.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if expected == TokenTypeAccess {
		opts = append(opts, jwt.WithLeeway(30*time.Second)) // clock skew tolerance
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Custom claims validation
	if claims.TokenType != expected {
		return Claims{}, fmt.Errorf("%w: token_type mismatch", ErrInvalidToken)
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: user_id missing", ErrInvalidToken)
	}
	if claims.Role == "" {
		return Claims{}, fmt.Errorf("%w: role missing", ErrInvalidToken)
	}
	if expected == TokenTypeAction && claims.Action == "" {
		return Claims{}, fmt.Errorf("%w: action missing", ErrInvalidToken)
	}

	return claims, nil
}

// VerifyActionToken validates an action token and returns its claims.
// Any failure, expiry included, is reported as ErrInvalidToken.
func (m *Manager) VerifyActionToken(tokenString string, now time.Time) (ActionClaims, error) {
	c, err := m.Verify(tokenString, TokenTypeAction, now)
	if err != nil {
		return ActionClaims{}, err
	}
	out := ActionClaims{
		TokenID: c.ID,
		UserID:  c.UserID,
		Role:    c.Role,
		Action:  c.Action,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Unix()
	}
	return out, nil
}

/* ===================== INTERNAL ISSUE ===================== */

func (m *Manager) issue(
	now time.Time,
	tokenType TokenType,
	userID,
	role,
	action string,
	ttl time.Duration,
) (string, error) {

	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
		Action:    action,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
