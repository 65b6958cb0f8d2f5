package signing

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

const softKeyBits = 2048

// keyStore abstracts where a SoftSigner persists encrypted private key
// material, letting it be backed by the engine room's own KVS instead
// of a bespoke file layout.
type keyStore interface {
	Store(ctx context.Context, id string, encrypted []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// memoryKeyStore is a keyStore kept purely in process memory, used by
// tests and by deployments that intentionally run keys in RAM only
// (e.g. throwaway CI signers).
type memoryKeyStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{data: make(map[string][]byte)}
}

func (m *memoryKeyStore) Store(_ context.Context, id string, encrypted []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = encrypted
	return nil
}

func (m *memoryKeyStore) Load(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownKey)
	}
	return v, nil
}

func (m *memoryKeyStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// SoftSigner is krill's OpenSsl-equivalent backend: RSA key pairs
// generated in process and encrypted at rest with AES-256-GCM, adapted
// from the teacher's SecretsManager pattern in pkg/security/secrets.go.
type SoftSigner struct {
	name          string
	encryptionKey []byte
	keys          keyStore
}

// NewSoftSigner returns a SoftSigner that encrypts private keys with
// encryptionKey (32 bytes, AES-256) before handing them to store.
func NewSoftSigner(name string, encryptionKey []byte, store keyStore) (*SoftSigner, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("signing: encryption key must be 32 bytes for AES-256, got %d", len(encryptionKey))
	}
	if store == nil {
		store = newMemoryKeyStore()
	}
	return &SoftSigner{name: name, encryptionKey: encryptionKey, keys: store}, nil
}

func (s *SoftSigner) Name() string { return s.name }

func (s *SoftSigner) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *SoftSigner) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("signing: ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *SoftSigner) storeKey(ctx context.Context, id KeyIdentifier, key *rsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	encrypted, err := s.encrypt(der)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}
	return s.keys.Store(ctx, string(id), encrypted)
}

func (s *SoftSigner) loadKey(ctx context.Context, id KeyIdentifier) (*rsa.PrivateKey, error) {
	encrypted, err := s.keys.Load(ctx, string(id))
	if err != nil {
		return nil, err
	}
	der, err := s.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing: key %s is not an RSA key", id)
	}
	return rsaKey, nil
}

func (s *SoftSigner) CreateKey(ctx context.Context) (KeyIdentifier, error) {
	key, err := rsa.GenerateKey(rand.Reader, softKeyBits)
	if err != nil {
		return "", fmt.Errorf("generate rsa key: %w", err)
	}
	id := KeyIdentifier(uuid.New().String())
	if err := s.storeKey(ctx, id, key); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SoftSigner) GetKeyInfo(ctx context.Context, id KeyIdentifier) (KeyInfo, error) {
	key, err := s.loadKey(ctx, id)
	if err != nil {
		return KeyInfo{}, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("marshal public key: %w", err)
	}
	return KeyInfo{ID: id, PublicKey: pub}, nil
}

func (s *SoftSigner) DestroyKey(ctx context.Context, id KeyIdentifier) error {
	return s.keys.Delete(ctx, string(id))
}

func (s *SoftSigner) Sign(ctx context.Context, id KeyIdentifier, alg Algorithm, data []byte) ([]byte, error) {
	if err := gateAlgorithm(alg); err != nil {
		return nil, err
	}
	key, err := s.loadKey(ctx, id)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

func (s *SoftSigner) SignOneOff(ctx context.Context, alg Algorithm, data []byte) ([]byte, PublicKey, error) {
	if err := gateAlgorithm(alg); err != nil {
		return nil, nil, err
	}
	key, err := rsa.GenerateKey(rand.Reader, softKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate one-off rsa key: %w", err)
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, nil, fmt.Errorf("sign one-off: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal one-off public key: %w", err)
	}
	return sig, pub, nil
}

func (s *SoftSigner) CreateRegistrationKey(ctx context.Context) (PublicKey, string, error) {
	id, err := s.CreateKey(ctx)
	if err != nil {
		return nil, "", err
	}
	info, err := s.GetKeyInfo(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return info.PublicKey, string(id), nil
}

func (s *SoftSigner) SignRegistrationChallenge(ctx context.Context, privateKeyID string, challenge []byte) ([]byte, error) {
	return s.Sign(ctx, KeyIdentifier(privateKeyID), RsaSha256, challenge)
}

func (s *SoftSigner) ImportKey(ctx context.Context, key *rsa.PrivateKey) (KeyIdentifier, error) {
	id := KeyIdentifier(uuid.New().String())
	if err := s.storeKey(ctx, id, key); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SoftSigner) Rand(_ context.Context, target []byte) error {
	_, err := io.ReadFull(rand.Reader, target)
	return err
}
