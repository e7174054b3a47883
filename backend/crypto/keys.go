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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/nacl/box"
)

// SignatureKeyPair is the long-lived key pair used to author space events
// and updates. The public key travels on the wire as compressed hex.
type SignatureKeyPair struct {
	priv *secp256k1.PrivateKey
}

// GenerateSignatureKeyPair creates a fresh signature key pair.
func GenerateSignatureKeyPair() (*SignatureKeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signature key: %w", err)
	}
	return &SignatureKeyPair{priv: priv}, nil
}

// SignatureKeyPairFromHex restores a key pair from a hex-encoded private key.
func SignatureKeyPairFromHex(privHex string) (*SignatureKeyPair, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}
	return &SignatureKeyPair{priv: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// PublicKeyHex returns the compressed public key, hex encoded.
func (kp *SignatureKeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.priv.PubKey().SerializeCompressed())
}

// PrivateKeyHex returns the private key scalar, hex encoded.
func (kp *SignatureKeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(kp.priv.Serialize())
}

// Address returns the stable account address bound to this key pair.
func (kp *SignatureKeyPair) Address() string {
	return AddressFromPublicKey(kp.PublicKeyHex())
}

// AddressFromPublicKey derives the account address from a compressed public
// key in hex: the trailing 20 bytes of sha256(pubkey), 0x-prefixed.
func AddressFromPublicKey(compressedPubHex string) string {
	raw, err := hex.DecodeString(compressedPubHex)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return "0x" + hex.EncodeToString(sum[12:])
}

// EncryptionKeyPair is the long-lived Curve25519 key pair used to receive
// key boxes and inbox messages.
type EncryptionKeyPair struct {
	pub  *[32]byte
	priv *[32]byte
}

// GenerateEncryptionKeyPair creates a fresh encryption key pair.
func GenerateEncryptionKeyPair() (*EncryptionKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return &EncryptionKeyPair{pub: pub, priv: priv}, nil
}

// EncryptionKeyPairFromHex restores an encryption key pair from hex-encoded
// public and private key halves.
func EncryptionKeyPairFromHex(pubHex, privHex string) (*EncryptionKeyPair, error) {
	pub, err := decodeKey32(pubHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption public key: %w", err)
	}
	priv, err := decodeKey32(privHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption private key: %w", err)
	}
	return &EncryptionKeyPair{pub: pub, priv: priv}, nil
}

// PublicKeyHex returns the encryption public key, hex encoded.
func (kp *EncryptionKeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.pub[:])
}

// PrivateKeyHex returns the encryption private key, hex encoded.
func (kp *EncryptionKeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(kp.priv[:])
}

func decodeKey32(h string) (*[32]byte, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// GenerateSpaceKey creates a fresh 32-byte symmetric space key.
func GenerateSpaceKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate space key: %w", err)
	}
	return key, nil
}
