/*
Package signing implements krill's signer dispatcher: a thin, tagged
union over concrete signing backends (software RSA keys today, PKCS#11
and KMIP HSMs as stubs), adapted from the secrets encryption approach
in the teacher's pkg/security package and the signer dispatch pattern
of the original engine's SignerProvider.

A Provider wraps one or more backends, each paired with a SignerFlags
value marking whether it is the default signer for new keys and
whether it is used for one-off (throwaway, never persisted) signing
operations. Only
RSA-SHA256 is accepted; every other algorithm is rejected before
dispatch, matching the original engine's algorithm gate.
*/
package signing
