// Package vault encrypts saved payment card fields at rest with NaCl
// secretbox. Each sealed value carries its own random nonce as a prefix.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrCorrupt = errors.New("vault: ciphertext corrupt or sealed with another key")

type Vault struct {
	key [keySize]byte
}

// New builds a Vault from a 64 character hex key.
func New(keyHex string) (*Vault, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keySize, len(raw))
	}

	v := &Vault{}
	copy(v.key[:], raw)
	return v, nil
}

// Generate returns a Vault with a random key. Used when no key is configured
// outside production, so saved cards do not survive a restart.
func Generate() (*Vault, string, error) {
	v := &Vault{}
	if _, err := io.ReadFull(rand.Reader, v.key[:]); err != nil {
		return nil, "", err
	}
	return v, hex.EncodeToString(v.key[:]), nil
}

func (v *Vault) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key), nil
}

func (v *Vault) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(out), nil
}
