package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/store"
)

// Token types carried in the "type" claim.
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

// Claims are the JWT claims issued for a user.
type Claims struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenPair is returned on register, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokens signs access and refresh tokens with secret.
func NewTokens(secret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a fresh access and refresh token for u.
func (t *Tokens) Issue(u *store.User) (TokenPair, error) {
	access, err := t.sign(u, AccessToken, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(u, RefreshToken, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(t.accessTTL.Seconds()),
	}, nil
}

func (t *Tokens) sign(u *store.User, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Type:     typ,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return s, nil
}

// Parse verifies the signature, expiry and type of a token.
func (t *Tokens) Parse(token, wantType string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, apperr.Wrap(err, apperr.Authentication, "token has expired")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Authentication, "invalid token")
	}
	if claims.Type != wantType {
		return nil, apperr.New(apperr.Authentication, "invalid token type")
	}
	if claims.Subject == "" || claims.Username == "" {
		return nil, apperr.New(apperr.Authentication, "invalid token payload")
	}
	return &claims, nil
}
