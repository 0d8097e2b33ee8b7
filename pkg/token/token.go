package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// RefreshTokenPrefix identifies gatekeeper refresh tokens
	RefreshTokenPrefix = "gkr_"
	// refreshSecretLength is the number of random bytes in a refresh
	// secret (32 bytes = 256 bits)
	refreshSecretLength = 32

	// TokenTypeAccess is the token_type claim on access tokens
	TokenTypeAccess = "access"
)

// Claims represents the JWT claims on an access token
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256-signed access tokens
type Signer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewSigner creates a signer. The secret must be at least 32 bytes
// (enforced at config validation).
func NewSigner(secret, issuer string, accessTTL time.Duration) *Signer {
	return &Signer{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// AccessTTL returns the configured access token lifetime
func (s *Signer) AccessTTL() time.Duration {
	return s.accessTTL
}

// SignAccessToken creates a signed access token for a user
func (s *Signer) SignAccessToken(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)

	claims := &Claims{
		UserID:    userID,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID,
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyAccessToken validates signature and expiry and returns the
// claims. It performs no I/O; blacklist checks are the service's job.
func (s *Signer) VerifyAccessToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return claims, nil
}

// GenerateRefreshSecret creates an opaque refresh secret.
// Format: gkr_<base64url(32 random bytes)>. Returns the raw secret
// and its SHA-256 hex hash for storage.
func GenerateRefreshSecret() (raw string, hash string, err error) {
	randomBytes := make([]byte, refreshSecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	raw = RefreshTokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return raw, HashToken(raw), nil
}

// HashToken computes the SHA-256 hex hash of a token for lookup
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateRefreshFormat checks whether a string is shaped like a
// refresh secret, catching malformed input before any store round
// trip.
func ValidateRefreshFormat(token string) error {
	if !strings.HasPrefix(token, RefreshTokenPrefix) {
		return fmt.Errorf("token must start with %q", RefreshTokenPrefix)
	}

	encoded := strings.TrimPrefix(token, RefreshTokenPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}
