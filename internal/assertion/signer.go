package assertion

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/forcekit/client-go/internal/apierrors"
)

// Lifetime is how long a signed assertion stays valid.
const Lifetime = 5 * time.Minute

// Claims are the identity claims carried by an assertion.
type Claims struct {
	// Issuer is the connected app's consumer key.
	Issuer string
	// Subject is the username the token is issued for.
	Subject string
	// Audience is the login URL of the token endpoint.
	Audience string
}

// Sign returns an RS256 assertion for claims, valid from now for [Lifetime].
func Sign(key *rsa.PrivateKey, claims Claims, now time.Time) (string, error) {
	if key == nil {
		return "", &apierrors.SigningError{Message: "private key is nil"}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		Audience:  jwt.ClaimStrings{claims.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
		ID:        uuid.NewString(),
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return "", &apierrors.SigningError{Message: "sign assertion", Err: err}
	}
	return signed, nil
}

// Signer signs assertions for a fixed key and set of claims.
type Signer struct {
	key    *rsa.PrivateKey
	claims Claims
	now    func() time.Time
}

// NewSigner creates a Signer. It fails with a SigningError when key is nil.
func NewSigner(key *rsa.PrivateKey, claims Claims) (*Signer, error) {
	if key == nil {
		return nil, &apierrors.SigningError{Message: "private key is nil"}
	}
	return &Signer{key: key, claims: claims, now: time.Now}, nil
}

// SetClock overrides the time source. Intended for tests.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// Claims returns the claims the signer embeds.
func (s *Signer) Claims() Claims {
	return s.claims
}

// Sign produces a fresh assertion.
func (s *Signer) Sign() (string, error) {
	return Sign(s.key, s.claims, s.now())
}
