// Copyright (C) 2025 The Hypergraph Authors <dev@hypergraph.sh>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	// ErrKeyBoxDecryption is returned when a key box fails the
	// authenticated-decryption check: wrong private key or tampered
	// ciphertext. Never retried.
	ErrKeyBoxDecryption = errors.New("crypto: key box decryption failed")

	// ErrMessageDecryption is returned when a symmetric payload fails the
	// authenticated-decryption check.
	ErrMessageDecryption = errors.New("crypto: message decryption failed")
)

const nonceSize = 24

// SealedKey is the result of asymmetrically encrypting a symmetric key to
// one recipient. Ciphertext and nonce are hex encoded for the wire.
type SealedKey struct {
	Ciphertext string
	Nonce      string
}

// EncryptKeyBox seals spaceKey to the recipient's encryption public key.
// The recipient needs the sender's public key and its own private key to
// open it.
func EncryptKeyBox(spaceKey []byte, recipientPubHex string, sender *EncryptionKeyPair) (SealedKey, error) {
	recipientPub, err := decodeKey32(recipientPubHex)
	if err != nil {
		return SealedKey{}, fmt.Errorf("invalid recipient public key: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return SealedKey{}, err
	}
	sealed := box.Seal(nil, spaceKey, &nonce, recipientPub, sender.priv)
	return SealedKey{
		Ciphertext: hex.EncodeToString(sealed),
		Nonce:      hex.EncodeToString(nonce[:]),
	}, nil
}

// DecryptKeyBox opens a sealed key with the recipient's private key and the
// author's public key. A wrong key or tampered ciphertext fails the
// authentication check and never yields garbage key material.
func DecryptKeyBox(sealed SealedKey, authorPubHex string, recipient *EncryptionKeyPair) ([]byte, error) {
	authorPub, err := decodeKey32(authorPubHex)
	if err != nil {
		return nil, fmt.Errorf("invalid author public key: %w", err)
	}
	ciphertext, err := hex.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid key box ciphertext: %w", err)
	}
	nonceRaw, err := hex.DecodeString(sealed.Nonce)
	if err != nil || len(nonceRaw) != nonceSize {
		return nil, ErrKeyBoxDecryption
	}
	var nonce [nonceSize]byte
	copy(nonce[:], nonceRaw)

	key, ok := box.Open(nil, ciphertext, &nonce, authorPub, recipient.priv)
	if !ok {
		return nil, ErrKeyBoxDecryption
	}
	return key, nil
}

// EncryptMessage symmetrically encrypts plaintext with a 32-byte space key.
// The nonce is prepended to the ciphertext, matching the at-rest format.
func EncryptMessage(key, plaintext []byte) ([]byte, error) {
	boxKey, err := asBoxKey(key)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, boxKey), nil
}

// DecryptMessage opens a nonce-prefixed symmetric ciphertext.
func DecryptMessage(key, ciphertext []byte) ([]byte, error) {
	boxKey, err := asBoxKey(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < nonceSize {
		return nil, ErrMessageDecryption
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, boxKey)
	if !ok {
		return nil, ErrMessageDecryption
	}
	return plaintext, nil
}

// EncryptMessageHex is EncryptMessage with hex output for the wire.
func EncryptMessageHex(key, plaintext []byte) (string, error) {
	ciphertext, err := EncryptMessage(key, plaintext)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ciphertext), nil
}

// DecryptMessageHex is DecryptMessage over a hex-encoded ciphertext.
func DecryptMessageHex(key []byte, ciphertextHex string) ([]byte, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, ErrMessageDecryption
	}
	return DecryptMessage(key, ciphertext)
}

func asBoxKey(key []byte) (*[32]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("expected 32-byte key, got %d bytes", len(key))
	}
	var out [32]byte
	copy(out[:], key)
	return &out, nil
}
