package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("exp-1", "ledger/exp-1.csv")
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	id, name, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", id)
	assert.Equal(t, "ledger/exp-1.csv", name)
}

func TestSignerRejectsExpiredAndTampered(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := NewSigner("secret", time.Minute)
	signer.now = func() time.Time { return base }

	token, _, err := signer.Sign("exp-1", "ledger/exp-1.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, _, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other := NewSigner("other", time.Minute)
	_, _, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSigner("", time.Minute).Sign("exp-1", "a.csv")
	assert.Error(t, err)
}
