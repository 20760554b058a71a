package auth

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	tokenIssuer   = "coinbase-cloud"
	tokenLifetime = 2 * time.Minute
	nonceLength   = 64
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Signer produces short-lived bearer tokens for authenticated requests.
type Signer interface {
	// Sign returns a token scoped to the given URI. An empty URI produces
	// a token suitable for websocket subscriptions.
	Sign(uri string) (string, error)
}

// JWTSigner signs ES256 tokens with a CDP API key pair.
type JWTSigner struct {
	keyName string
	key     *ecdsa.PrivateKey

	now func() time.Time
}

// NewJWTSigner parses a PEM-encoded EC private key and returns a signer
// for the named API key.
func NewJWTSigner(keyName, keyPEM string) (*JWTSigner, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse api private key: %w", err)
	}

	return &JWTSigner{
		keyName: keyName,
		key:     key,
		now:     time.Now,
	}, nil
}

type apiClaims struct {
	jwt.RegisteredClaims
	URI string `json:"uri,omitempty"`
}

func (s *JWTSigner) Sign(uri string) (string, error) {
	now := s.now()

	claims := apiClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.keyName,
			Issuer:    tokenIssuer,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
		URI: uri,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyName

	nonce, err := newNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	token.Header["nonce"] = nonce

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func newNonce() (string, error) {
	buf := make([]byte, nonceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf), nil
}
