package signing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSoftSigner(t *testing.T, name string) *SoftSigner {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	s, err := NewSoftSigner(name, key, newMemoryKeyStore())
	require.NoError(t, err)
	return s
}

func TestSoftSignerCreateSignVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSoftSigner(t, "soft-1")

	id, err := s.CreateKey(ctx)
	require.NoError(t, err)

	info, err := s.GetKeyInfo(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, info.PublicKey)

	sig, err := s.Sign(ctx, id, RsaSha256, []byte("hello engine room"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestSoftSignerRejectsUnsupportedAlgorithm(t *testing.T) {
	ctx := context.Background()
	s := newTestSoftSigner(t, "soft-1")
	id, err := s.CreateKey(ctx)
	require.NoError(t, err)

	_, err = s.Sign(ctx, id, Algorithm("ecdsa-sha256"), []byte("data"))
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestSoftSignerDestroyThenSignFails(t *testing.T) {
	ctx := context.Background()
	s := newTestSoftSigner(t, "soft-1")
	id, err := s.CreateKey(ctx)
	require.NoError(t, err)
	require.NoError(t, s.DestroyKey(ctx, id))

	_, err = s.Sign(ctx, id, RsaSha256, []byte("data"))
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestNewProviderRequiresExactlyOneDefaultSigner(t *testing.T) {
	soft := newTestSoftSigner(t, "soft-1")

	_, err := NewProvider()
	require.ErrorIs(t, err, ErrNoDefaultSigner)

	_, err = NewProvider(
		BackendConfig{Signer: soft, Flags: SignerFlags{IsDefaultSigner: true}},
		BackendConfig{Signer: mustMockSigner(t, "soft-2"), Flags: SignerFlags{IsDefaultSigner: true}},
	)
	require.ErrorIs(t, err, ErrMultipleDefaultSigners)
}

func mustMockSigner(t *testing.T, name string) *MockSigner {
	t.Helper()
	m, err := NewMockSigner(name)
	require.NoError(t, err)
	return m
}

func TestProviderDispatchesByKeyOwnershipAndGatesAlgorithm(t *testing.T) {
	ctx := context.Background()
	def := newTestSoftSigner(t, "default")
	oneOff := mustMockSigner(t, "one-off")
	hsm := NewPkcs11Signer("hsm-1")

	provider, err := NewProvider(
		BackendConfig{Signer: def, Flags: SignerFlags{IsDefaultSigner: true}},
		BackendConfig{Signer: oneOff, Flags: SignerFlags{IsOneOffSigner: true}},
		BackendConfig{Signer: hsm, Flags: SignerFlags{}},
	)
	require.NoError(t, err)
	assert.Equal(t, "default", provider.DefaultSignerName())

	id, err := provider.CreateKey(ctx)
	require.NoError(t, err)

	sig, err := provider.Sign(ctx, id, RsaSha256, []byte("payload"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	_, err = provider.Sign(ctx, id, Algorithm("ecdsa-sha256"), []byte("payload"))
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, _, err = provider.SignOneOff(ctx, Algorithm("ecdsa-sha256"), []byte("payload"))
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	oneOffSig, pub, err := provider.SignOneOff(ctx, RsaSha256, []byte("payload"))
	require.NoError(t, err)
	assert.NotEmpty(t, oneOffSig)
	assert.NotEmpty(t, pub)

	require.NoError(t, provider.DestroyKey(ctx, id))
	_, err = provider.GetKeyInfo(ctx, id)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestProviderUnknownKeyIsRejectedBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	def := newTestSoftSigner(t, "default")
	provider, err := NewProvider(BackendConfig{Signer: def, Flags: DefaultSignerFlags()})
	require.NoError(t, err)

	_, err = provider.Sign(ctx, KeyIdentifier("does-not-exist"), RsaSha256, []byte("x"))
	require.ErrorIs(t, err, ErrUnknownKey)
}
