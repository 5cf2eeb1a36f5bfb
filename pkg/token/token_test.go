package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelTokenRoundTrip(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	bookingID := uuid.New()

	raw, err := signer.GenerateCancelToken(bookingID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	got, err := signer.VerifyCancelToken(raw)
	require.NoError(t, err)
	assert.Equal(t, bookingID, got)
}

func TestCancelTokenExpired(t *testing.T) {
	signer := NewSigner("secret", -time.Minute)

	raw, err := signer.GenerateCancelToken(uuid.New())
	require.NoError(t, err)

	_, err = signer.VerifyCancelToken(raw)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCancelTokenWrongSecret(t *testing.T) {
	raw, err := NewSigner("secret-a", time.Hour).GenerateCancelToken(uuid.New())
	require.NoError(t, err)

	_, err = NewSigner("secret-b", time.Hour).VerifyCancelToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCancelTokenGarbage(t *testing.T) {
	signer := NewSigner("secret", time.Hour)

	_, err := signer.VerifyCancelToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
