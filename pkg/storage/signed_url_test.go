package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("doc-1", "f1/doc-1.pdf")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	docID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)
	require.Equal(t, "f1/doc-1.pdf", relPath)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("doc-1", "f1/doc-1.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "a")
	require.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestSignedURLExpires(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Nanosecond)

	token, _, err := signer.Generate("doc-1", "f1/doc-1.pdf")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}
