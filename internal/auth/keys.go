// Package auth implements sign-in with an external identity provider,
// RS256 access tokens with a JWKS endpoint, and rotating opaque refresh
// tokens.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
)

const signingKeyFile = "signing.pem"

// Keypair is the process signing key. Generated once on first start and
// reloaded from disk afterwards so issued tokens survive restarts.
type Keypair struct {
	Private *rsa.PrivateKey
	KeyID   string
}

// LoadOrCreateKeypair reads the RS256 signing key from dir, generating and
// persisting a fresh 2048-bit key when none exists.
func LoadOrCreateKeypair(dir string) (*Keypair, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keys dir: %w", err)
	}
	path := filepath.Join(dir, signingKeyFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		return parseKeypair(raw)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("persist signing key: %w", err)
	}
	return &Keypair{Private: key, KeyID: keyID(key)}, nil
}

func parseKeypair(raw []byte) (*Keypair, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signing key file is not PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &Keypair{Private: key, KeyID: keyID(key)}, nil
}

// keyID derives a stable identifier from the public modulus.
func keyID(key *rsa.PrivateKey) string {
	sum := sha256.Sum256(key.PublicKey.N.Bytes())
	return hex.EncodeToString(sum[:8])
}

// JWKS renders the public half in JSON Web Key Set form for token
// verification by other parties.
func (k *Keypair) JWKS() map[string]any {
	pub := k.Private.PublicKey
	return map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": k.KeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}
