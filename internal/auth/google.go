package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"taskhive/internal/apperr"
)

// Identity is the canonical output of id-token verification.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// IdentityVerifier validates an external provider's id token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

const jwksCacheTTL = 24 * time.Hour

// GoogleVerifier checks Google id tokens against the provider's rotating
// JWKS, cached for 24 hours per key id.
type GoogleVerifier struct {
	clientID string
	jwksURL  string
	issuers  []string
	client   *http.Client
	cache    *expirable.LRU[string, *rsa.PublicKey]
}

// NewGoogleVerifier builds the verifier.
func NewGoogleVerifier(clientID, jwksURL string, issuers []string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("google verifier requires client id")
	}
	return &GoogleVerifier{
		clientID: clientID,
		jwksURL:  jwksURL,
		issuers:  issuers,
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    expirable.NewLRU[string, *rsa.PublicKey](16, nil, jwksCacheTTL),
	}, nil
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// Verify validates the token's signature, audience, issuer, and verified
// email, and returns the canonical identity.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("id token missing kid")
		}
		return v.publicKey(ctx, kid)
	}, jwt.WithAudience(v.clientID), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, apperr.Unauthorized("id token verification failed").WithCause(err)
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, apperr.Unauthorized("id token from unknown issuer")
	}
	if !claims.EmailVerified || claims.Email == "" {
		return nil, apperr.Unauthorized("account email is not verified")
	}
	return &Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// publicKey resolves a signing key by kid, hitting the JWKS endpoint only
// on cache misses.
func (v *GoogleVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := v.cache.Get(kid); ok {
		return key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch provider jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider jwks returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read provider jwks: %w", err)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode provider jwks: %w", err)
	}

	var found *rsa.PublicKey
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		key, err := parseRSAJWK(k.N, k.E)
		if err != nil {
			continue
		}
		v.cache.Add(k.Kid, key)
		if k.Kid == kid {
			found = key
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no provider key matches kid %s", kid)
	}
	return found, nil
}

func parseRSAJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
