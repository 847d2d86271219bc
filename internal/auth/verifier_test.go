package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcrm/internal/config"
)

func TestDevTokens(t *testing.T) {
	v := NewVerifier(config.AuthConfig{})
	p, err := v.Verify("u-42:Dispatcher")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u-42", Role: RoleDispatcher}, p)
	assert.True(t, p.CanDispatch())
	assert.False(t, p.IsAdmin())

	p, err = v.Verify("u-1:superuser")
	require.NoError(t, err)
	assert.Equal(t, RoleRep, p.Role)

	_, err = v.Verify("garbage")
	assert.Error(t, err)
}

func TestHMACRoundTrip(t *testing.T) {
	v := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: "top-secret", Issuer: "fieldcrm"})
	tok, err := v.Sign(Principal{UserID: "rep-7", Role: RoleRep}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "rep-7", p.UserID)
	assert.Equal(t, RoleRep, p.Role)
}

func TestHMACRejects(t *testing.T) {
	v := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: "top-secret"})

	other := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: "different"})
	forged, err := other.Sign(Principal{UserID: "x", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.Error(t, err)

	expired, err := v.Sign(Principal{UserID: "x"}, -time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.Error(t, err)

	_, err = v.Verify("u:admin")
	assert.Error(t, err)
}
