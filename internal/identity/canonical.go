package identity

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// CanonicalMarshal serializes v to canonical JSON: object keys sorted
// lexicographically at every level, numbers preserved verbatim. Two processes
// hashing the same logical value always produce the same bytes.
func CanonicalMarshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	// Round-trip through generic containers: encoding/json emits map keys in
	// sorted order, and json.Number keeps the original numeric text.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// CalculateHash computes the content address of v: 0x-prefixed hex of the
// keccak-256 digest over the canonical serialization.
func CalculateHash(v interface{}) (string, error) {
	data, err := CanonicalMarshal(v)
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// CheckHashMatches reports whether digest is the content address of v.
func CheckHashMatches(digest string, v interface{}) bool {
	computed, err := CalculateHash(v)
	if err != nil {
		return false
	}
	return computed == digest
}
