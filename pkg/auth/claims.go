package auth

import (
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenPayload captures the data available when minting a JWT.
type TokenPayload struct {
	UserID int64
	Role   enums.UserRole
	JTI    string
}

// TokenClaims mirrors the claim set the storefront backend issues: a numeric
// user_id and a token_type discriminator next to the registered claims.
type TokenClaims struct {
	UserID    int64          `json:"user_id"`
	TokenType string         `json:"token_type"`
	Role      enums.UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}
