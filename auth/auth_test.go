package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	hashed, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hashed)

	assert.True(t, VerifyPassword(hashed, "hunter2"))
	assert.False(t, VerifyPassword(hashed, "hunter3"))
	assert.False(t, VerifyPassword("not a bcrypt hash", "hunter2"))
}

func TestTokenIssuer_Roundtrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Minute)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	subject, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", -time.Minute)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	token, err := NewTokenIssuer("other-secret", time.Minute).Issue("alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("s3cret", time.Minute).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	_, err := NewTokenIssuer("s3cret", time.Minute).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
