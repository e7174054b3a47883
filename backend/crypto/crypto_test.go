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
	"bytes"
	"errors"
	"testing"
)

func TestSignatureRoundTrip(t *testing.T) {
	kp, err := GenerateSignatureKeyPair()
	if err != nil {
		t.Fatalf("GenerateSignatureKeyPair failed: %v", err)
	}

	payload := []byte("hello space")
	sig := SignMessage(kp, payload)

	if err := VerifySignature(sig, payload, kp.PublicKeyHex()); err != nil {
		t.Fatalf("VerifySignature failed: %v", err)
	}

	recovered, err := RecoverPublicKey(sig, payload)
	if err != nil {
		t.Fatalf("RecoverPublicKey failed: %v", err)
	}
	if recovered != kp.PublicKeyHex() {
		t.Errorf("Expected recovered key %s, got %s", kp.PublicKeyHex(), recovered)
	}
}

func TestSignatureRejectsTamperedPayload(t *testing.T) {
	kp, _ := GenerateSignatureKeyPair()
	sig := SignMessage(kp, []byte("original"))

	if err := VerifySignature(sig, []byte("tampered"), kp.PublicKeyHex()); err == nil {
		t.Error("Expected verification failure for tampered payload")
	}
}

func TestSignatureRecoveryMismatch(t *testing.T) {
	kp, _ := GenerateSignatureKeyPair()
	other, _ := GenerateSignatureKeyPair()

	payload := []byte("payload")
	sig := SignMessage(kp, payload)

	if err := VerifySignature(sig, payload, other.PublicKeyHex()); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestKeyBoxRoundTrip(t *testing.T) {
	sender, _ := GenerateEncryptionKeyPair()
	recipient, _ := GenerateEncryptionKeyPair()

	spaceKey, err := GenerateSpaceKey()
	if err != nil {
		t.Fatalf("GenerateSpaceKey failed: %v", err)
	}

	sealed, err := EncryptKeyBox(spaceKey, recipient.PublicKeyHex(), sender)
	if err != nil {
		t.Fatalf("EncryptKeyBox failed: %v", err)
	}

	opened, err := DecryptKeyBox(sealed, sender.PublicKeyHex(), recipient)
	if err != nil {
		t.Fatalf("DecryptKeyBox failed: %v", err)
	}
	if !bytes.Equal(opened, spaceKey) {
		t.Error("Decrypted key does not match original")
	}
}

func TestKeyBoxWrongRecipientFails(t *testing.T) {
	sender, _ := GenerateEncryptionKeyPair()
	recipient, _ := GenerateEncryptionKeyPair()
	eavesdropper, _ := GenerateEncryptionKeyPair()

	spaceKey, _ := GenerateSpaceKey()
	sealed, _ := EncryptKeyBox(spaceKey, recipient.PublicKeyHex(), sender)

	if _, err := DecryptKeyBox(sealed, sender.PublicKeyHex(), eavesdropper); !errors.Is(err, ErrKeyBoxDecryption) {
		t.Errorf("Expected ErrKeyBoxDecryption, got %v", err)
	}
}

func TestKeyBoxTamperedCiphertextFails(t *testing.T) {
	sender, _ := GenerateEncryptionKeyPair()
	recipient, _ := GenerateEncryptionKeyPair()

	spaceKey, _ := GenerateSpaceKey()
	sealed, _ := EncryptKeyBox(spaceKey, recipient.PublicKeyHex(), sender)

	// Flip the first ciphertext byte.
	raw := []byte(sealed.Ciphertext)
	if raw[0] == 'a' {
		raw[0] = 'b'
	} else {
		raw[0] = 'a'
	}
	sealed.Ciphertext = string(raw)

	if _, err := DecryptKeyBox(sealed, sender.PublicKeyHex(), recipient); !errors.Is(err, ErrKeyBoxDecryption) {
		t.Errorf("Expected ErrKeyBoxDecryption, got %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	key, _ := GenerateSpaceKey()
	plaintext := []byte("crdt delta bytes")

	ciphertextHex, err := EncryptMessageHex(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptMessageHex failed: %v", err)
	}

	decrypted, err := DecryptMessageHex(key, ciphertextHex)
	if err != nil {
		t.Fatalf("DecryptMessageHex failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("Decrypted message does not match original")
	}

	wrongKey, _ := GenerateSpaceKey()
	if _, err := DecryptMessageHex(wrongKey, ciphertextHex); !errors.Is(err, ErrMessageDecryption) {
		t.Errorf("Expected ErrMessageDecryption, got %v", err)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	type payload struct {
		B string `json:"b"`
		A string `json:"a"`
		N int    `json:"n"`
	}

	first, err := CanonicalJSON(payload{B: "x", A: "y", N: 3})
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}
	second, _ := CanonicalJSON(map[string]any{"n": 3, "a": "y", "b": "x"})

	if !bytes.Equal(first, second) {
		t.Errorf("Expected identical canonical encodings, got %s and %s", first, second)
	}
}

func TestAddressDerivationStable(t *testing.T) {
	kp, _ := GenerateSignatureKeyPair()

	addr1 := kp.Address()
	addr2 := AddressFromPublicKey(kp.PublicKeyHex())
	if addr1 != addr2 {
		t.Errorf("Expected stable address, got %s and %s", addr1, addr2)
	}
	if len(addr1) != 2+40 {
		t.Errorf("Expected 0x-prefixed 20-byte address, got %q", addr1)
	}

	restored, err := SignatureKeyPairFromHex(kp.PrivateKeyHex())
	if err != nil {
		t.Fatalf("SignatureKeyPairFromHex failed: %v", err)
	}
	if restored.Address() != addr1 {
		t.Error("Restored key pair derives a different address")
	}
}
