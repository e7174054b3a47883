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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	// ErrInvalidSignature is returned when a signature fails verification
	// against the claimed public key.
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrSignatureRecovery is returned when a public key cannot be
	// recovered from a compact signature.
	ErrSignatureRecovery = errors.New("crypto: signature recovery failed")
)

// Signature is a compact secp256k1 signature with its recovery code, so a
// verifier can recover the signing public key without a key lookup.
type Signature struct {
	Hex      string `json:"hex"`
	Recovery int    `json:"recovery"`
}

// compactRecoveryBase is the offset SignCompact applies to the recovery
// code for compressed public keys.
const compactRecoveryBase = 27 + 4

// SignMessage signs sha256(payload) and returns the wire-form signature.
func SignMessage(kp *SignatureKeyPair, payload []byte) Signature {
	digest := sha256.Sum256(payload)
	compact := ecdsa.SignCompact(kp.priv, digest[:], true)
	return Signature{
		Hex:      hex.EncodeToString(compact[1:]),
		Recovery: int(compact[0]) - compactRecoveryBase,
	}
}

// RecoverPublicKey recovers the compressed public key (hex) that produced
// sig over payload.
func RecoverPublicKey(sig Signature, payload []byte) (string, error) {
	rs, err := hex.DecodeString(sig.Hex)
	if err != nil {
		return "", fmt.Errorf("%w: bad signature hex: %v", ErrSignatureRecovery, err)
	}
	if len(rs) != 64 || sig.Recovery < 0 || sig.Recovery > 3 {
		return "", ErrSignatureRecovery
	}
	compact := make([]byte, 65)
	compact[0] = byte(sig.Recovery + compactRecoveryBase)
	copy(compact[1:], rs)

	digest := sha256.Sum256(payload)
	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureRecovery, err)
	}
	return hex.EncodeToString(pub.SerializeCompressed()), nil
}

// VerifySignature checks that sig over payload was produced by the holder
// of the given compressed public key.
func VerifySignature(sig Signature, payload []byte, compressedPubHex string) error {
	recovered, err := RecoverPublicKey(sig, payload)
	if err != nil {
		return ErrInvalidSignature
	}
	if recovered != compressedPubHex {
		return ErrInvalidSignature
	}
	return nil
}

// CanonicalJSON encodes v as deterministic JSON: object keys are sorted so
// that two encoders agree byte for byte. Used for every hashed or signed
// payload.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// Round-trip through an untyped tree; encoding/json sorts map keys.
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// HashValue returns the hex sha256 of the canonical encoding of v.
func HashValue(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SignValue signs the canonical encoding of v.
func SignValue(kp *SignatureKeyPair, v any) (Signature, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return Signature{}, err
	}
	return SignMessage(kp, canonical), nil
}

// VerifyValue checks sig over the canonical encoding of v.
func VerifyValue(sig Signature, v any, compressedPubHex string) error {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return err
	}
	return VerifySignature(sig, canonical, compressedPubHex)
}

// ParsePublicKey validates a compressed public key in hex.
func ParsePublicKey(compressedPubHex string) error {
	raw, err := hex.DecodeString(compressedPubHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	return nil
}
