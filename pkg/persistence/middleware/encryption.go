package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Envelope markers for an encrypted map.
const (
	envelopeName = "encrypted"
	envelopeAttr = "__encrypted__"
)

// ErrKeySize is returned for keys that are not 32 bytes long.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when ActiveKey cannot decrypt, which
	// allows key rotation without rewriting stored maps.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.MapStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that stores each map as an
// AES-GCM sealed envelope: a single node whose only attribute holds the
// ciphertext.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, ErrKeySize
		}
	}
	return func(next ports.MapStore) ports.MapStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, mapID string, root *domain.Node) error {
	plainText, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt map: %w", err)
	}

	envelope := &domain.Node{
		Name:       envelopeName,
		Attributes: map[string]string{envelopeAttr: base64.StdEncoding.EncodeToString(ciphertext)},
	}
	return m.next.Save(ctx, mapID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, mapID string) (*domain.Node, error) {
	envelope, err := m.next.Load(ctx, mapID)
	if err != nil {
		return nil, err
	}

	var encoded string
	if envelope != nil {
		encoded = envelope.Attributes[envelopeAttr]
	}
	if encoded == "" {
		// Fail closed: a plain map under an encrypting store is not trusted.
		return nil, fmt.Errorf("map %s is missing its encrypted envelope", mapID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt map: %w", err)
	}

	var root *domain.Node
	if err := json.Unmarshal(plainText, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted map: %w", err)
	}
	return root, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, mapID string) error {
	return m.next.Delete(ctx, mapID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
