package signing

import (
	"context"
	"crypto/rsa"
)

// MockSigner is a Signer for tests: it delegates every call to a
// SoftSigner with a fixed encryption key and an in-memory key store,
// so keys are freshly generated and never touch disk or an HSM. It is
// grounded on the Mock backend of the original engine's SignerProvider,
// used there to keep unit tests independent of real cryptographic
// backends.
type MockSigner struct {
	inner *SoftSigner
}

// NewMockSigner returns a MockSigner backed by an in-memory SoftSigner,
// so tests exercise real RSA-SHA256 math without touching a key store.
func NewMockSigner(name string) (*MockSigner, error) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	inner, err := NewSoftSigner(name, key, newMemoryKeyStore())
	if err != nil {
		return nil, err
	}
	return &MockSigner{inner: inner}, nil
}

func (m *MockSigner) Name() string { return m.inner.Name() }

func (m *MockSigner) CreateKey(ctx context.Context) (KeyIdentifier, error) {
	return m.inner.CreateKey(ctx)
}

func (m *MockSigner) GetKeyInfo(ctx context.Context, id KeyIdentifier) (KeyInfo, error) {
	return m.inner.GetKeyInfo(ctx, id)
}

func (m *MockSigner) DestroyKey(ctx context.Context, id KeyIdentifier) error {
	return m.inner.DestroyKey(ctx, id)
}

func (m *MockSigner) Sign(ctx context.Context, id KeyIdentifier, alg Algorithm, data []byte) ([]byte, error) {
	return m.inner.Sign(ctx, id, alg, data)
}

func (m *MockSigner) SignOneOff(ctx context.Context, alg Algorithm, data []byte) ([]byte, PublicKey, error) {
	return m.inner.SignOneOff(ctx, alg, data)
}

func (m *MockSigner) CreateRegistrationKey(ctx context.Context) (PublicKey, string, error) {
	return m.inner.CreateRegistrationKey(ctx)
}

func (m *MockSigner) SignRegistrationChallenge(ctx context.Context, privateKeyID string, challenge []byte) ([]byte, error) {
	return m.inner.SignRegistrationChallenge(ctx, privateKeyID, challenge)
}

func (m *MockSigner) ImportKey(ctx context.Context, key *rsa.PrivateKey) (KeyIdentifier, error) {
	return m.inner.ImportKey(ctx, key)
}

func (m *MockSigner) Rand(ctx context.Context, target []byte) error {
	return m.inner.Rand(ctx, target)
}
