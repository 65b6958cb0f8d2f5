package signing

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/krillca/krill/pkg/log"
	"github.com/krillca/krill/pkg/metrics"
)

// backendEntry pairs one Signer with its dispatch flags.
type backendEntry struct {
	signer Signer
	flags  SignerFlags
}

// Provider is a tagged-union dispatcher over one or more Signer
// backends, grounded on the original engine's SignerProvider: callers
// never talk to a concrete backend directly, only to the Provider,
// which picks the right backend by key identifier or by dispatch flag
// and enforces the RSA-SHA256-only algorithm gate before it ever
// reaches a backend's Sign/SignOneOff.
type Provider struct {
	mu       sync.RWMutex
	backends []backendEntry
	byName   map[string]*backendEntry
	keyOwner map[KeyIdentifier]string
	defaultB *backendEntry
	oneOffB  *backendEntry
}

// BackendConfig pairs a Signer backend with the dispatch flags the
// Provider should use for it.
type BackendConfig struct {
	Signer Signer
	Flags  SignerFlags
}

// NewProvider validates backends (exactly one default signer, at most
// one one-off signer) and returns a ready Provider.
func NewProvider(backends ...BackendConfig) (*Provider, error) {
	p := &Provider{
		byName:   make(map[string]*backendEntry),
		keyOwner: make(map[KeyIdentifier]string),
	}

	var defaults, oneOffs int
	for _, b := range backends {
		entry := backendEntry{signer: b.Signer, flags: b.Flags}
		p.backends = append(p.backends, entry)
		ref := &p.backends[len(p.backends)-1]
		p.byName[b.Signer.Name()] = ref
		if b.Flags.IsDefaultSigner {
			defaults++
			p.defaultB = ref
		}
		if b.Flags.IsOneOffSigner {
			oneOffs++
			p.oneOffB = ref
		}
	}

	if defaults == 0 {
		return nil, ErrNoDefaultSigner
	}
	if defaults > 1 {
		return nil, ErrMultipleDefaultSigners
	}
	if oneOffs > 1 {
		return nil, ErrMultipleOneOffSigners
	}
	if p.oneOffB == nil {
		p.oneOffB = p.defaultB
	}

	return p, nil
}

func gateAlgorithm(alg Algorithm) error {
	if alg != RsaSha256 {
		return fmt.Errorf("%s: %w", alg, ErrUnsupportedAlgorithm)
	}
	return nil
}

// CreateKey generates a new key on the default signer and records
// which backend owns it so later operations can be routed correctly.
func (p *Provider) CreateKey(ctx context.Context) (KeyIdentifier, error) {
	name := p.defaultB.signer.Name()
	timer := metrics.NewTimer()
	id, err := p.defaultB.signer.CreateKey(ctx)
	timer.ObserveDurationVec(metrics.SignerOperationDuration, name, "create_key")
	if err != nil {
		metrics.SignerOperationsTotal.WithLabelValues(name, "create_key", "error").Inc()
		return "", fmt.Errorf("create key on %s: %w", name, err)
	}
	metrics.SignerOperationsTotal.WithLabelValues(name, "create_key", "ok").Inc()

	p.mu.Lock()
	p.keyOwner[id] = p.defaultB.signer.Name()
	p.mu.Unlock()

	log.WithComponent("signing").Info().
		Str("key_id", string(id)).
		Str("signer", p.defaultB.signer.Name()).
		Msg("created signing key")
	return id, nil
}

// ImportKey imports an externally generated key pair into the default
// signer, failing if that backend does not support imports (HSMs).
func (p *Provider) ImportKey(ctx context.Context, key *rsa.PrivateKey) (KeyIdentifier, error) {
	id, err := p.defaultB.signer.ImportKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("import key into %s: %w", p.defaultB.signer.Name(), err)
	}
	p.mu.Lock()
	p.keyOwner[id] = p.defaultB.signer.Name()
	p.mu.Unlock()
	return id, nil
}

func (p *Provider) ownerOf(id KeyIdentifier) (*backendEntry, error) {
	p.mu.RLock()
	name, ok := p.keyOwner[id]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownKey)
	}
	entry, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownKey)
	}
	return entry, nil
}

// GetKeyInfo returns the public key for id, dispatching to whichever
// backend created it.
func (p *Provider) GetKeyInfo(ctx context.Context, id KeyIdentifier) (KeyInfo, error) {
	entry, err := p.ownerOf(id)
	if err != nil {
		return KeyInfo{}, err
	}
	return entry.signer.GetKeyInfo(ctx, id)
}

// DestroyKey dispatches to the owning backend and forgets ownership.
func (p *Provider) DestroyKey(ctx context.Context, id KeyIdentifier) error {
	entry, err := p.ownerOf(id)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return nil
		}
		return err
	}
	if err := entry.signer.DestroyKey(ctx, id); err != nil {
		return fmt.Errorf("destroy key on %s: %w", entry.signer.Name(), err)
	}
	p.mu.Lock()
	delete(p.keyOwner, id)
	p.mu.Unlock()
	return nil
}

// Sign dispatches to the backend that owns id, after gating alg to
// RSA-SHA256 only. The gate runs before dispatch so a misconfigured
// caller never exercises a backend with an algorithm it was never
// meant to receive.
func (p *Provider) Sign(ctx context.Context, id KeyIdentifier, alg Algorithm, data []byte) ([]byte, error) {
	if err := gateAlgorithm(alg); err != nil {
		return nil, err
	}
	entry, err := p.ownerOf(id)
	if err != nil {
		return nil, err
	}
	name := entry.signer.Name()
	timer := metrics.NewTimer()
	sig, err := entry.signer.Sign(ctx, id, alg, data)
	timer.ObserveDurationVec(metrics.SignerOperationDuration, name, "sign")
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SignerOperationsTotal.WithLabelValues(name, "sign", status).Inc()
	if err != nil {
		return nil, fmt.Errorf("sign with %s: %w", name, err)
	}
	return sig, nil
}

// SignOneOff dispatches to the configured one-off signer (or the
// default signer if none is flagged), after the same algorithm gate.
func (p *Provider) SignOneOff(ctx context.Context, alg Algorithm, data []byte) ([]byte, PublicKey, error) {
	if err := gateAlgorithm(alg); err != nil {
		return nil, nil, err
	}
	if p.oneOffB == nil {
		return nil, nil, ErrNoOneOffSigner
	}
	name := p.oneOffB.signer.Name()
	timer := metrics.NewTimer()
	sig, pub, err := p.oneOffB.signer.SignOneOff(ctx, alg, data)
	timer.ObserveDurationVec(metrics.SignerOperationDuration, name, "sign_one_off")
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SignerOperationsTotal.WithLabelValues(name, "sign_one_off", status).Inc()
	if err != nil {
		return nil, nil, fmt.Errorf("sign one-off with %s: %w", name, err)
	}
	return sig, pub, nil
}

// CreateRegistrationKey dispatches to the default signer.
func (p *Provider) CreateRegistrationKey(ctx context.Context) (PublicKey, string, error) {
	return p.defaultB.signer.CreateRegistrationKey(ctx)
}

// SignRegistrationChallenge dispatches to the default signer.
func (p *Provider) SignRegistrationChallenge(ctx context.Context, privateKeyID string, challenge []byte) ([]byte, error) {
	return p.defaultB.signer.SignRegistrationChallenge(ctx, privateKeyID, challenge)
}

// Rand dispatches to the default signer's random source.
func (p *Provider) Rand(ctx context.Context, target []byte) error {
	return p.defaultB.signer.Rand(ctx, target)
}

// DefaultSignerName returns the name of the configured default signer,
// for inclusion in diagnostics and command history.
func (p *Provider) DefaultSignerName() string {
	return p.defaultB.signer.Name()
}
