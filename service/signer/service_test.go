package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerify(t *testing.T) {
	svc, err := New(context.Background(), &Config{Environment: "test"})
	assert.NoError(t, err)

	message := []byte("remediation payload")
	signature, err := svc.Sign(message)
	assert.NoError(t, err)
	assert.Len(t, signature, SignatureSize)

	assert.True(t, svc.Verify(signature, message))
	assert.False(t, svc.Verify(signature, []byte("tampered payload")))
	assert.False(t, svc.Verify([]byte("garbage"), message))
	assert.False(t, svc.Verify(nil, message))
}

func TestExplicitSeed(t *testing.T) {
	seed := make([]byte, SeedSize)
	_, err := rand.Read(seed)
	assert.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(seed)

	svc, err := New(context.Background(), &Config{Seed: encoded, Environment: "production"})
	assert.NoError(t, err)

	expected := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, expected, svc.PublicKey())
}

func TestInvalidSeed(t *testing.T) {
	_, err := New(context.Background(), &Config{Seed: "not-base64!!"})
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = New(context.Background(), &Config{Seed: short})
	assert.Error(t, err)
}

func TestDerivedDevSeedIsStable(t *testing.T) {
	a, err := New(context.Background(), &Config{Environment: "dev"})
	assert.NoError(t, err)
	b, err := New(context.Background(), &Config{Environment: "dev"})
	assert.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	c, err := New(context.Background(), &Config{Environment: "staging"})
	assert.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())
}

func TestProductionRequiresKey(t *testing.T) {
	_, err := New(context.Background(), &Config{Environment: "production"})
	assert.ErrorIs(t, err, ErrNoSigningKey)
}
