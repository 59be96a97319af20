package permission

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// Token represents the claims in an identity JWT. The identity is carried
// in the standard Subject claim.
type Token struct {

	// Name is an optional display name for the identity
	Name string `json:"name,omitempty"`

	jwt.RegisteredClaims
}

// Errors returned when checking tokens
var (
	ErrMissingClaims    = errors.New("token missing required claims")
	ErrWrongAudience    = errors.New("token audience does not match")
	ErrIdentityMismatch = errors.New("token subject does not match identity")
)

// NewToken returns a Token populated with the supplied information
func NewToken(audience, identity string, iat, nbf, exp int64) Token {

	return Token{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(time.Unix(iat, 0)),
			NotBefore: jwt.NewNumericDate(time.Unix(nbf, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(exp, 0)),
			Audience:  []string{audience},
		},
	}
}

// HasRequiredClaims returns false if the Token is missing any required elements
func HasRequiredClaims(token Token) bool {

	if token.Subject == "" ||
		len(token.RegisteredClaims.Audience) == 0 ||
		token.RegisteredClaims.ExpiresAt == nil ||
		(*token.RegisteredClaims.ExpiresAt).IsZero() {
		return false
	}
	return true
}

// Sign returns the token signed with secret using HS256
func Sign(token Token, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, token).SignedString([]byte(secret))
}

// Verifier checks identity tokens presented at registration
type Verifier struct {
	Audience string
	Secret   string
}

// Verify parses bearer, checks signature, lifetime and audience, and
// that its subject is identity
func (v Verifier) Verify(bearer, identity string) error {

	claims := &Token{}

	token, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method was %v", token.Header["alg"])
		}
		return []byte(v.Secret), nil
	})

	if err != nil {
		return fmt.Errorf("parsing token: %w", err)
	}

	if !token.Valid { //checks iat, nbf, exp
		return errors.New("token invalid")
	}

	if !HasRequiredClaims(*claims) {
		return ErrMissingClaims
	}

	if v.Audience != "" && !claims.VerifyAudience(v.Audience, true) {
		return ErrWrongAudience
	}

	if claims.Subject != identity {
		return ErrIdentityMismatch
	}

	return nil
}
