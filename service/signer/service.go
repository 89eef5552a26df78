// Package signer holds the process-wide asymmetric signing keypair used to
// sign script packages. The keypair is constructed once at bootstrap and is
// read-only afterwards, so Sign and Verify are safe for unlimited concurrent
// use without locking.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/viant/scy"
	"golang.org/x/crypto/hkdf"
)

const (
	// SeedSize is the required byte length of a configured signing seed.
	SeedSize = ed25519.SeedSize

	// SignatureSize is the fixed length of every signature.
	SignatureSize = ed25519.SignatureSize

	productionEnvironment = "production"

	// devSeedInfo salts the deterministic non-production key derivation.
	devSeedInfo = "scriptgate-dev-signing-key"
)

// ErrNoSigningKey is returned when no key source is configured in production.
// Running with an ephemeral key would make every previously-signed package
// unverifiable after a restart, so the process must fail fast instead.
var ErrNoSigningKey = errors.New("signer: no signing key configured for production")

// Service signs and verifies byte payloads. The interface exists so the
// in-memory backend can later be swapped for an HSM or cloud KMS.
type Service interface {
	Sign(message []byte) ([]byte, error)
	Verify(signature, message []byte) bool
	PublicKey() ed25519.PublicKey
}

// Config selects the key source, evaluated once at construction:
// an explicit base64 seed wins, then an encrypted scy resource, then – only
// outside production – a deterministic derived seed so repeated restarts in
// dev/test keep the same key.
type Config struct {
	Seed        string        `json:"seed,omitempty" yaml:"seed,omitempty"` // base64-encoded 32-byte seed
	KeyResource *scy.Resource `json:"keyResource,omitempty" yaml:"keyResource,omitempty"`
	Environment string        `json:"environment,omitempty" yaml:"environment,omitempty"`
}

type service struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// New builds the keypair holder according to the acquisition policy.
func New(ctx context.Context, config *Config) (Service, error) {
	if config == nil {
		config = &Config{}
	}
	seed, err := acquireSeed(ctx, config)
	if err != nil {
		return nil, err
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &service{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
	}, nil
}

func acquireSeed(ctx context.Context, config *Config) ([]byte, error) {
	if config.Seed != "" {
		return decodeSeed(config.Seed)
	}
	if config.KeyResource != nil {
		secret, err := scy.New().Load(ctx, config.KeyResource)
		if err != nil {
			return nil, fmt.Errorf("signer: failed to load key resource: %w", err)
		}
		return decodeSeed(secret.String())
	}
	if config.Environment != productionEnvironment {
		return deriveSeed(config.Environment)
	}
	return nil, ErrNoSigningKey
}

func decodeSeed(encoded string) ([]byte, error) {
	seed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("signer: seed is not valid base64: %w", err)
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("signer: seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return seed, nil
}

// deriveSeed produces the fixed non-production seed via HKDF-SHA256 so that
// every dev/test process derives the same keypair.
func deriveSeed(environment string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(devSeedInfo), nil, []byte(environment))
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("signer: seed derivation failed: %w", err)
	}
	return seed, nil
}

func (s *service) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.private, message), nil
}

// Verify is a pure function: it returns false on any malformed input and
// never panics.
func (s *service) Verify(signature, message []byte) bool {
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(s.public, message, signature)
}

func (s *service) PublicKey() ed25519.PublicKey {
	return s.public
}
