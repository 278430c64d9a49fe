package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// TokenConfig holds the signing parameters used by the twin backend.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// MintAccessToken issues a signed access JWT.
func MintAccessToken(cfg TokenConfig, now time.Time, payload TokenPayload) (string, error) {
	return mint(cfg, now, payload, TokenTypeAccess, cfg.AccessTTL)
}

// MintRefreshToken issues a signed refresh JWT.
func MintRefreshToken(cfg TokenConfig, now time.Time, payload TokenPayload) (string, error) {
	return mint(cfg, now, payload, TokenTypeRefresh, cfg.RefreshTTL)
}

func mint(cfg TokenConfig, now time.Time, payload TokenPayload, tokenType string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%s token ttl must be positive", tokenType)
	}
	if payload.UserID <= 0 {
		return "", fmt.Errorf("user id is required")
	}
	if payload.Role != "" && !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := TokenClaims{
		UserID:    payload.UserID,
		TokenType: tokenType,
		Role:      payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseToken validates the JWT string, checks it carries wantType and
// returns typed claims.
func ParseToken(cfg TokenConfig, tokenString, wantType string) (*TokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwtSigningMethod.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("expected %s token, got %q", wantType, claims.TokenType)
	}
	return claims, nil
}

// AccessTokenInfo is what a client can learn from its own access token.
type AccessTokenInfo struct {
	UserID    int64
	ExpiresAt time.Time
}

// ExpiresWithin reports whether the token expires within skew of now. A token
// without exp never does.
func (i AccessTokenInfo) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(i.ExpiresAt)
}

// InspectAccessToken reads claims without verifying the signature. The client
// never holds the signing key; it only needs user_id and exp to decide when
// to refresh.
func InspectAccessToken(tokenString string) (AccessTokenInfo, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return AccessTokenInfo{}, fmt.Errorf("inspect access token: %w", err)
	}
	info := AccessTokenInfo{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
