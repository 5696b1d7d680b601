package auth

import (
	"time"

	"chat-core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is a verified connection identity: the external user plus the
// roles the identity provider granted. The core trusts it as given.
type Identity struct {
	User  domain.User
	Roles []string
}

func (i Identity) Authenticated() bool {
	return i.User.ID != ""
}

// CustomClaims defines the data the identity provider signs into a token.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 tokens minted by the identity provider.
// The secret is shared configuration; the core never issues credentials
// itself outside of tests.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret []byte) TokenVerifier {
	return TokenVerifier{secret: secret}
}

// Verify parses and validates the signature and expiration of a token
// string, returning the identity it carries.
func (v TokenVerifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrSignatureInvalid
	}
	return Identity{
		User:  domain.User{ID: claims.UserID, DisplayName: claims.DisplayName},
		Roles: claims.Roles,
	}, nil
}

// Mint creates a signed token for an identity. Only the identity provider
// (and tests standing in for it) should call this.
func (v TokenVerifier) Mint(identity Identity, lifetime time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID:      identity.User.ID,
		DisplayName: identity.User.DisplayName,
		Roles:       identity.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-core",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
