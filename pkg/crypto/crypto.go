package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// keySalt is fixed so every instance derives the same key from the
	// same master key. Rotating it invalidates all stored envelopes.
	keySalt       = "eventgate.destination.secrets"
	keyIterations = 10000
	keyLength     = 32
	ivLength      = 12
	tagLength     = 16
)

// ErrNoMasterKey signals that envelope operations were attempted without
// ENCRYPTION_MASTER_KEY configured.
var ErrNoMasterKey = fmt.Errorf("encryption master key not configured")

// ErrMalformedEnvelope signals input that is not iv:tag:ciphertext base64.
var ErrMalformedEnvelope = fmt.Errorf("malformed secret envelope")

// Cipher seals and opens destination secrets using AES-256-GCM with a
// key derived once from the master key.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AEAD from the master key. An empty master key yields a
// cipher whose operations return ErrNoMasterKey; callers decide whether
// that is fatal (it is not for unsigned delivery).
func New(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return &Cipher{}, nil
	}

	key := pbkdf2.Key([]byte(masterKey), []byte(keySalt), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Ready reports whether a master key was configured.
func (c *Cipher) Ready() bool {
	return c != nil && c.aead != nil
}

// Encrypt seals the plaintext into base64(iv):base64(tag):base64(ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Ready() {
		return "", ErrNoMasterKey
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	if len(sealed) < tagLength {
		return "", fmt.Errorf("sealed payload too short")
	}
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	if !c.Ready() {
		return "", ErrNoMasterKey
	}

	iv, tag, ciphertext, err := splitEnvelope(envelope)
	if err != nil {
		return "", err
	}
	if len(iv) != ivLength || len(tag) != tagLength {
		return "", ErrMalformedEnvelope
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("open envelope: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether the value looks like an envelope: exactly
// three colon-separated parts that each decode as standard base64. The
// ciphertext part may be empty; sealing an empty plaintext leaves only
// the tag.
func IsEncrypted(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return false
	}
	for i, part := range parts {
		if part == "" && i != 2 {
			return false
		}
		if _, err := base64.StdEncoding.DecodeString(part); err != nil {
			return false
		}
	}
	return true
}

func splitEnvelope(envelope string) (iv, tag, ciphertext []byte, err error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	iv, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	tag, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	ciphertext, err = base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	return iv, tag, ciphertext, nil
}
