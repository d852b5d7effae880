// Package identity implements the identity provider: key generation,
// deterministic content hashing, payload signing with recoverable secp256k1
// signatures, and address derivation. All functions are pure; the package
// holds no state.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
)

// KeyPair holds a freshly generated secret and its derived address.
type KeyPair struct {
	Address string
	Secret  *secp256k1.PrivateKey
}

// CreateKeyPair generates a new secp256k1 key pair.
func CreateKeyPair() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}
	return KeyPair{Address: AddressFromSecret(priv), Secret: priv}, nil
}

// PrivateKeyFromHex parses a 0x-prefixed or bare hex-encoded secret.
func PrivateKeyFromHex(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

// PrivateKeyToHex serializes a secret as 0x-prefixed hex.
func PrivateKeyToHex(priv *secp256k1.PrivateKey) string {
	return "0x" + hex.EncodeToString(priv.Serialize())
}

// AddressFromSecret derives the account address for a secret: the last 20
// bytes of keccak-256 over the uncompressed public key, 0x-prefixed.
func AddressFromSecret(priv *secp256k1.PrivateKey) string {
	return addressFromPublicKey(priv.PubKey())
}

func addressFromPublicKey(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:]) // strip the 0x04 format byte
	digest := h.Sum(nil)
	return "0x" + hex.EncodeToString(digest[12:])
}

// Sign produces a recoverable signature over the canonical serialization of
// payload, as 0x-prefixed hex of the 65-byte compact form.
func Sign(priv *secp256k1.PrivateKey, payload interface{}) (string, error) {
	data, err := CanonicalMarshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	sig := secpecdsa.SignCompact(priv, h.Sum(nil), false)
	return "0x" + hex.EncodeToString(sig), nil
}

// ValidateSignature verifies that signature was produced over payload by the
// holder of address. Any recovery or mismatch failure surfaces as a
// ValidationError.
func ValidateSignature(address, signature string, payload interface{}) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return apperrors.NewValidationError("signature", "malformed hex")
	}

	data, err := CanonicalMarshal(payload)
	if err != nil {
		return apperrors.NewValidationError("signature", "payload not serializable")
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(data)

	pub, _, err := secpecdsa.RecoverCompact(raw, h.Sum(nil))
	if err != nil {
		return apperrors.NewValidationError("signature", "recovery failed")
	}

	if !strings.EqualFold(addressFromPublicKey(pub), address) {
		return apperrors.NewValidationError("signature", "does not match createdBy address")
	}
	return nil
}
