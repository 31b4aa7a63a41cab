package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhive/internal/apperr"
)

// Claims is the payload of an access token.
type Claims struct {
	UserID string `json:"uid"`
	Tier   string `json:"tier"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a short-lived RS256 access token.
func (s *Service) IssueAccessToken(userID, tier string, now time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		Tier:   tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keys.KeyID
	signed, err := token.SignedString(s.keys.Private)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates a bearer token. Expiry maps to the distinct
// TOKEN_EXPIRED code so clients know to refresh instead of re-login.
func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return &s.keys.Private.PublicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.TokenExpired()
		}
		return nil, apperr.Unauthorized("invalid access token")
	}
	if claims.UserID == "" {
		return nil, apperr.Unauthorized("token missing subject")
	}
	return claims, nil
}

// newRefreshToken mints an opaque token and the SHA-256 hash stored
// server-side. The raw value is only ever returned to the client.
func newRefreshToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashRefreshToken(raw), nil
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
