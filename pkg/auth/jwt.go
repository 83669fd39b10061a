package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// IdentityKey is the request-context key the api middleware stores the
// resolved identity under.
const IdentityKey contextKey = "identity"

// Claims is the token payload the identity provider mints: a stable external
// subject plus the profile fields the relay caches at connect time.
type Claims struct {
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
	jwt.RegisteredClaims
}

func jwtKey() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("dev_secret")
}

// GenerateToken mints a token for an external user reference. Used by the api
// token endpoint and by tests; production tokens come from the identity
// provider with the same shape.
func GenerateToken(externalID, displayName, handle string) (string, error) {
	claims := &Claims{
		DisplayName: displayName,
		Handle:      handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   externalID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey())
}

// ValidateToken parses and verifies a token, returning its claims.
func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return jwtKey(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return claims, nil
}
