package signing

import "errors"

var (
	// ErrUnsupportedAlgorithm is returned when a caller requests any
	// algorithm other than RsaSha256. The engine room only ever speaks
	// RSA-SHA256; every other value is rejected before a backend ever
	// sees the request.
	ErrUnsupportedAlgorithm = errors.New("signing: unsupported algorithm, only rsa-sha256 is accepted")

	// ErrUnknownKey is returned by GetKeyInfo/Sign when no key with the
	// given identifier exists. DestroyKey of an unknown key is a no-op
	// and returns nil.
	ErrUnknownKey = errors.New("signing: unknown key identifier")

	// ErrNoDefaultSigner is returned by NewProvider when none of the
	// backends passed in carry SignerFlags.IsDefaultSigner.
	ErrNoDefaultSigner = errors.New("signing: no default signer configured")

	// ErrMultipleDefaultSigners is returned by NewProvider when more
	// than one backend claims to be the default signer.
	ErrMultipleDefaultSigners = errors.New("signing: more than one default signer configured")

	// ErrMultipleOneOffSigners is returned by NewProvider when more
	// than one backend claims to handle one-off signing.
	ErrMultipleOneOffSigners = errors.New("signing: more than one one-off signer configured")

	// ErrNoOneOffSigner is returned by SignOneOff when the Provider has
	// no one-off signer to dispatch to. NewProvider falls back to the
	// default signer when no backend is flagged for one-off signing, so
	// a Provider built by NewProvider always has one.
	ErrNoOneOffSigner = errors.New("signing: no one-off signer configured")

	// ErrUnsupportedOperation is returned by HSM-backed signers for
	// operations krill's HSM integrations do not implement, such as
	// ImportKey.
	ErrUnsupportedOperation = errors.New("signing: operation not supported by this backend")
)
