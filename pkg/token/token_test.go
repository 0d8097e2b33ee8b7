package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testSigner(ttl time.Duration) *Signer {
	return NewSigner(testSecret, "gatekeeper", ttl)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := testSigner(30 * time.Minute)

	signed, expiresAt, err := signer.SignAccessToken("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 2*time.Second)

	claims, err := signer.VerifyAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "gatekeeper", claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyExpiredToken(t *testing.T) {
	signer := testSigner(-time.Minute)

	signed, _, err := signer.SignAccessToken("user-1")
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := testSigner(30 * time.Minute)
	signed, _, err := signer.SignAccessToken("user-1")
	require.NoError(t, err)

	other := NewSigner("ffffffffffffffffffffffffffffffff", "gatekeeper", 30*time.Minute)
	_, err = other.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongIssuer(t *testing.T) {
	other := NewSigner(testSecret, "someone-else", 30*time.Minute)
	signed, _, err := other.SignAccessToken("user-1")
	require.NoError(t, err)

	signer := testSigner(30 * time.Minute)
	_, err = signer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMalformedToken(t *testing.T) {
	signer := testSigner(30 * time.Minute)
	_, err := signer.VerifyAccessToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNonAccessTokenType(t *testing.T) {
	signer := testSigner(30 * time.Minute)

	now := time.Now()
	claims := &Claims{
		UserID:    "user-1",
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "gatekeeper",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	signer := testSigner(30 * time.Minute)

	now := time.Now()
	claims := &Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "gatekeeper",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingExpiry(t *testing.T) {
	signer := testSigner(30 * time.Minute)

	claims := &Claims{
		UserID:    "user-1",
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "gatekeeper",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRefreshSecret(t *testing.T) {
	raw, hash, err := GenerateRefreshSecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, RefreshTokenPrefix))
	assert.Equal(t, HashToken(raw), hash)
	assert.Len(t, hash, 64)
	assert.NoError(t, ValidateRefreshFormat(raw))
}

func TestGenerateRefreshSecretUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		raw, _, err := GenerateRefreshSecret()
		require.NoError(t, err)
		assert.False(t, seen[raw], "duplicate refresh secret generated")
		seen[raw] = true
	}
}

func TestValidateRefreshFormat(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", "gkr_abc123DEF456", false},
		{"missing prefix", "abc123DEF456", true},
		{"wrong prefix", "tok_abc123", true},
		{"empty after prefix", "gkr_", true},
		{"invalid base64url", "gkr_!!!", true},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRefreshFormat(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	assert.Equal(t, HashToken("gkr_abc"), HashToken("gkr_abc"))
	assert.NotEqual(t, HashToken("gkr_abc"), HashToken("gkr_abd"))
}

func TestRefreshTokenActive(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tests := []struct {
		name   string
		token  RefreshToken
		active bool
	}{
		{"active", RefreshToken{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", RefreshToken{ExpiresAt: now.Add(-time.Hour)}, false},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.token.Active(now))
		})
	}
}
