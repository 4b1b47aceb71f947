package identity

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (Identity, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := FromPublicKey(pub)
	require.NoError(t, err)
	return id, priv
}

func TestParse_RoundTrip(t *testing.T) {
	id, _ := newKey(t)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = Parse("not-hex")
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = Parse("abcd")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestAuthenticate_ValidToken(t *testing.T) {
	id, priv := newKey(t)
	token, err := IssueToken(priv, time.Minute)
	require.NoError(t, err)

	auth := NewAuthenticator(5*time.Second, time.Hour)
	got, err := auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestAuthenticate_Rejects(t *testing.T) {
	victim, victimKey := newKey(t)
	_, attackerKey := newKey(t)
	auth := NewAuthenticator(0, time.Hour)

	expired, err := IssueToken(attackerKey, -time.Minute)
	require.NoError(t, err)

	// token claims to be the victim but is signed by another key
	forgedClaims := jwt.RegisteredClaims{
		Subject:   victim.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, forgedClaims).SignedString(attackerKey)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{Subject: victim.String()}).SignedString(victimKey)
	require.NoError(t, err)

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, forgedClaims).SignedString([]byte("secret"))
	require.NoError(t, err)

	tooLong, err := IssueToken(attackerKey, 48*time.Hour)
	require.NoError(t, err)

	// iat in the future does not move the lifetime window
	futureClaims := jwt.RegisteredClaims{
		Subject:   victim.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(10*365*24*time.Hour - time.Minute)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * 365 * 24 * time.Hour)),
	}
	futureIssued, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, futureClaims).SignedString(victimKey)
	require.NoError(t, err)

	// remaining lifetime beyond the cap
	staleClaims := jwt.RegisteredClaims{
		Subject:   victim.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-30 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, staleClaims).SignedString(victimKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"forged subject", forged},
		{"missing expiry", noExpiry},
		{"wrong algorithm", hmacToken},
		{"lifetime too long", tooLong},
		{"future issued-at", futureIssued},
		{"remaining lifetime too long", stale},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Authenticate(tc.token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}
