package signing

// SignerFlags tags a backend with its role among the signers a Provider
// dispatches across, mirroring the original engine's SignerFlags used
// to pick a signer for new key material versus throwaway one-off
// signing without scanning every configured backend.
type SignerFlags struct {
	// IsDefaultSigner marks the backend CreateKey uses for new keys.
	// Exactly one configured backend must set this.
	IsDefaultSigner bool

	// IsOneOffSigner marks the backend SignOneOff uses. At most one
	// configured backend should set this; if none do, SignOneOff falls
	// back to the default signer.
	IsOneOffSigner bool
}

// DefaultSignerFlags is the flag set new backends are given unless
// configured otherwise: the default signer for everything, not
// specialized for one-off signing.
func DefaultSignerFlags() SignerFlags {
	return SignerFlags{IsDefaultSigner: true, IsOneOffSigner: false}
}
