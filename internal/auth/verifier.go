// Package auth verifies opaque signed connection tokens. Token issuing is
// owned by an external identity provider; the coordinator only checks the
// signature and extracts the caller's identity.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultDisplayName is used when a verified token carries no name claim.
const DefaultDisplayName = "Anonymous"

// ErrInvalidToken is returned when a token fails verification or carries
// an unusable payload.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// Verifier validates HS256-signed connection tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for tokens signed with the given HMAC secret.
//
// Precondition: secret must be non-empty.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the token signature and returns the embedded identity.
// Tokens must carry a non-empty "userId" claim; a missing "name" claim
// falls back to DefaultDisplayName.
//
// Postcondition: Returns a populated Identity, or an error wrapping
// ErrInvalidToken. No session state is created on failure.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name = DefaultDisplayName
	}

	return Identity{UserID: userID, DisplayName: name}, nil
}
