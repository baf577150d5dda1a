package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters shared with every component that stores credentials in the metadata store.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	secretKeyLen = 32
	ivLen        = 16
	tagLen       = 16
)

var scryptSalt = []byte("salt")

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// SecretCodec encrypts secrets at rest with AES-256-GCM.
// Ciphertexts are encoded as hex(iv):hex(tag):hex(ciphertext).
type SecretCodec struct {
	aead cipher.AEAD
}

func NewSecretCodec(secret string) (*SecretCodec, error) {
	if secret == "" {
		return nil, errors.New("encryption key is required")
	}

	key, err := scrypt.Key([]byte(secret), scryptSalt, scryptN, scryptR, scryptP, secretKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return &SecretCodec{aead: aead}, nil
}

func (c *SecretCodec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct)), nil
}

// Decrypt accepts the hex triple produced by Encrypt as well as the older
// base64(iv || tag || ciphertext) encoding.
func (c *SecretCodec) Decrypt(encoded string) (string, error) {
	iv, tag, ct, err := splitCiphertext(encoded)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func splitCiphertext(encoded string) (iv, tag, ct []byte, err error) {
	parts := strings.Split(encoded, ":")
	if len(parts) == 3 {
		if iv, err = hex.DecodeString(parts[0]); err != nil {
			return nil, nil, nil, ErrInvalidCiphertext
		}
		if tag, err = hex.DecodeString(parts[1]); err != nil {
			return nil, nil, nil, ErrInvalidCiphertext
		}
		if ct, err = hex.DecodeString(parts[2]); err != nil {
			return nil, nil, nil, ErrInvalidCiphertext
		}
	} else {
		raw, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(raw) < ivLen+tagLen {
			return nil, nil, nil, ErrInvalidCiphertext
		}
		iv, tag, ct = raw[:ivLen], raw[ivLen:ivLen+tagLen], raw[ivLen+tagLen:]
	}

	if len(iv) != ivLen || len(tag) != tagLen {
		return nil, nil, nil, ErrInvalidCiphertext
	}
	return iv, tag, ct, nil
}
