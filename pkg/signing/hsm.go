package signing

import (
	"context"
	"crypto/rsa"
	"fmt"
)

// Pkcs11Signer and KmipSigner are stubs for the original engine's
// hardware-backed signers. Wiring either to a real device is out of
// scope for the engine room (see SPEC_FULL.md Non-goals); both exist
// here so Provider's dispatch and the RSA-SHA256 gate have a second,
// clearly-non-default backend to exercise in tests, and so a future
// implementation has a concrete seam to fill in.

type hsmKind string

const (
	hsmPkcs11 hsmKind = "pkcs11"
	hsmKmip   hsmKind = "kmip"
)

// HSMSigner is an unimplemented Signer for a given hardware backend
// kind. Every method returns ErrUnsupportedOperation.
type HSMSigner struct {
	name string
	kind hsmKind
}

// NewPkcs11Signer returns an HSMSigner stub for a PKCS#11 device.
func NewPkcs11Signer(name string) *HSMSigner { return &HSMSigner{name: name, kind: hsmPkcs11} }

// NewKmipSigner returns an HSMSigner stub for a KMIP server.
func NewKmipSigner(name string) *HSMSigner { return &HSMSigner{name: name, kind: hsmKmip} }

func (h *HSMSigner) Name() string { return h.name }

func (h *HSMSigner) unsupported(op string) error {
	return fmt.Errorf("%s backend %q does not support %s: %w", h.kind, h.name, op, ErrUnsupportedOperation)
}

func (h *HSMSigner) CreateKey(context.Context) (KeyIdentifier, error) {
	return "", h.unsupported("create_key")
}

func (h *HSMSigner) GetKeyInfo(context.Context, KeyIdentifier) (KeyInfo, error) {
	return KeyInfo{}, h.unsupported("get_key_info")
}

func (h *HSMSigner) DestroyKey(context.Context, KeyIdentifier) error {
	return h.unsupported("destroy_key")
}

func (h *HSMSigner) Sign(context.Context, KeyIdentifier, Algorithm, []byte) ([]byte, error) {
	return nil, h.unsupported("sign")
}

func (h *HSMSigner) SignOneOff(context.Context, Algorithm, []byte) ([]byte, PublicKey, error) {
	return nil, nil, h.unsupported("sign_one_off")
}

func (h *HSMSigner) CreateRegistrationKey(context.Context) (PublicKey, string, error) {
	return nil, "", h.unsupported("create_registration_key")
}

func (h *HSMSigner) SignRegistrationChallenge(context.Context, string, []byte) ([]byte, error) {
	return nil, h.unsupported("sign_registration_challenge")
}

func (h *HSMSigner) ImportKey(context.Context, *rsa.PrivateKey) (KeyIdentifier, error) {
	return "", h.unsupported("import_key")
}

func (h *HSMSigner) Rand(context.Context, []byte) error {
	return h.unsupported("rand")
}
