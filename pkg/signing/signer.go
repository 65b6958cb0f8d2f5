package signing

import (
	"context"
	"crypto/rsa"
)

// Algorithm identifies a signing algorithm requested by a caller. The
// dispatcher only ever accepts RsaSha256; every other value exists so
// callers can be rejected with a clear error rather than a type error.
type Algorithm string

const RsaSha256 Algorithm = "rsa-sha256"

// KeyIdentifier names a key held by a Signer. For the software signer
// it is a random UUID string; HSM-backed signers would use whatever
// identifier their device assigns.
type KeyIdentifier string

// PublicKey is the DER-encoded SubjectPublicKeyInfo of a key pair, the
// only part of a private key a Signer ever exposes.
type PublicKey []byte

// KeyInfo describes a key a Signer holds, without exposing the private
// material.
type KeyInfo struct {
	ID        KeyIdentifier
	PublicKey PublicKey
}

// Signer is the capability a signing backend provides. Implementations
// must never return private key material.
type Signer interface {
	// Name identifies the backend in logs and command history.
	Name() string

	// CreateKey generates a new key pair and returns its identifier.
	CreateKey(ctx context.Context) (KeyIdentifier, error)

	// GetKeyInfo returns the public key for an existing key.
	GetKeyInfo(ctx context.Context, id KeyIdentifier) (KeyInfo, error)

	// DestroyKey permanently removes a key. Idempotent: destroying an
	// already-absent key is not an error.
	DestroyKey(ctx context.Context, id KeyIdentifier) error

	// Sign produces a signature over data using the named key.
	Sign(ctx context.Context, id KeyIdentifier, alg Algorithm, data []byte) ([]byte, error)

	// SignOneOff generates a throwaway key, signs data with it, and
	// destroys the key before returning. Used for protocol messages
	// that must be signed but whose key need not persist.
	SignOneOff(ctx context.Context, alg Algorithm, data []byte) (signature []byte, pub PublicKey, err error)

	// CreateRegistrationKey creates a key used to register this signer
	// instance with a remote HSM or publication server.
	CreateRegistrationKey(ctx context.Context) (PublicKey, string, error)

	// SignRegistrationChallenge signs a challenge issued during signer
	// registration, identified by the private key id returned from
	// CreateRegistrationKey.
	SignRegistrationChallenge(ctx context.Context, privateKeyID string, challenge []byte) ([]byte, error)

	// ImportKey imports an externally generated RSA key pair. Only
	// supported by the software signer; HSM-backed signers reject it.
	ImportKey(ctx context.Context, key *rsa.PrivateKey) (KeyIdentifier, error)

	// Rand fills target with cryptographically secure random bytes
	// sourced from the backend.
	Rand(ctx context.Context, target []byte) error
}
