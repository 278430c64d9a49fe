package twin

import (
	"context"
	"strings"

	"github.com/angelmondragon/ajshoes-client/pkg/auth"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/security"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

// Identity is the caller resolved from an access token.
type Identity struct {
	UserID int64
	Role   enums.UserRole
}

func (i Identity) IsAdmin() bool {
	return i.Role == enums.UserRoleSuperAdmin || i.Role == enums.UserRoleSubAdmin
}

const badCredentials = "No active account found with the given credentials"

// Login checks credentials and mints an access/refresh pair.
func (b *Backend) Login(ctx context.Context, username, password string) (shopapi.TokenPair, error) {
	b.mu.Lock()
	id, ok := b.usernames[strings.ToLower(strings.TrimSpace(username))]
	var u user
	if ok {
		u = *b.users[id]
	}
	b.mu.Unlock()
	if !ok {
		return shopapi.TokenPair{}, pkgerrors.New(pkgerrors.CodeUnauthorized, badCredentials)
	}

	match, err := security.VerifyPassword(password, u.passwordHash)
	if err != nil {
		return shopapi.TokenPair{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !match {
		b.logg.Warn(b.logg.WithField(ctx, "username", username), "twin login rejected")
		return shopapi.TokenPair{}, pkgerrors.New(pkgerrors.CodeUnauthorized, badCredentials)
	}

	now := b.now()
	payload := auth.TokenPayload{UserID: u.ID, Role: u.Role}
	access, err := auth.MintAccessToken(b.tokens, now, payload)
	if err != nil {
		return shopapi.TokenPair{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	refresh, err := auth.MintRefreshToken(b.tokens, now, payload)
	if err != nil {
		return shopapi.TokenPair{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint refresh token")
	}
	return shopapi.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (b *Backend) Refresh(refresh string) (string, error) {
	claims, err := auth.ParseToken(b.tokens, refresh, auth.TokenTypeRefresh)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Token is invalid or expired")
	}
	b.mu.Lock()
	u, ok := b.users[claims.UserID]
	b.mu.Unlock()
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "User not found")
	}
	access, err := auth.MintAccessToken(b.tokens, b.now(), auth.TokenPayload{UserID: u.ID, Role: u.Role})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	return access, nil
}

// Authenticate validates an access token.
func (b *Backend) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "Authentication credentials were not provided.")
	}
	claims, err := auth.ParseToken(b.tokens, token, auth.TokenTypeAccess)
	if err != nil {
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Given token not valid for any token type")
	}
	b.mu.Lock()
	u, ok := b.users[claims.UserID]
	b.mu.Unlock()
	if !ok {
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not found")
	}
	return Identity{UserID: u.ID, Role: u.Role}, nil
}

func (b *Backend) Me(userID int64) (shopapi.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[userID]
	if !ok {
		return shopapi.User{}, notFound()
	}
	return u.User, nil
}
