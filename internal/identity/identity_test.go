package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
)

func TestCreateKeyPair(t *testing.T) {
	pair, err := CreateKeyPair()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(pair.Address, "0x"))
	assert.Len(t, pair.Address, 42)
	assert.Equal(t, pair.Address, AddressFromSecret(pair.Secret))
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	pair, err := CreateKeyPair()
	require.NoError(t, err)

	restored, err := PrivateKeyFromHex(PrivateKeyToHex(pair.Secret))
	require.NoError(t, err)
	assert.Equal(t, pair.Address, AddressFromSecret(restored))
}

func TestPrivateKeyFromHex_Invalid(t *testing.T) {
	_, err := PrivateKeyFromHex("0xzz")
	assert.Error(t, err)

	_, err = PrivateKeyFromHex("0xabcd")
	assert.Error(t, err, "short keys must be rejected")
}

func TestSignAndValidate(t *testing.T) {
	pair, err := CreateKeyPair()
	require.NoError(t, err)

	payload := map[string]interface{}{"createdBy": pair.Address, "timestamp": 42}

	sig, err := Sign(pair.Secret, payload)
	require.NoError(t, err)

	require.NoError(t, ValidateSignature(pair.Address, sig, payload))
}

func TestValidateSignature_WrongSigner(t *testing.T) {
	alice, err := CreateKeyPair()
	require.NoError(t, err)
	bob, err := CreateKeyPair()
	require.NoError(t, err)

	payload := map[string]interface{}{"value": "x"}
	sig, err := Sign(alice.Secret, payload)
	require.NoError(t, err)

	err = ValidateSignature(bob.Address, sig, payload)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestValidateSignature_TamperedPayload(t *testing.T) {
	pair, err := CreateKeyPair()
	require.NoError(t, err)

	sig, err := Sign(pair.Secret, map[string]interface{}{"value": "original"})
	require.NoError(t, err)

	err = ValidateSignature(pair.Address, sig, map[string]interface{}{"value": "tampered"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestValidateSignature_MalformedHex(t *testing.T) {
	err := ValidateSignature("0xabc", "not-hex", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestCalculateHash_Deterministic(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1}
	b := map[string]interface{}{"a": 1, "b": 2}

	ha, err := CalculateHash(a)
	require.NoError(t, err)
	hb, err := CalculateHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "key order must not affect the content address")
	assert.True(t, strings.HasPrefix(ha, "0x"))
	assert.Len(t, ha, 66)
}

func TestCalculateHash_StructAndMapAgree(t *testing.T) {
	type payload struct {
		CreatedBy string `json:"createdBy"`
		Timestamp int64  `json:"timestamp"`
	}

	hs, err := CalculateHash(payload{CreatedBy: "0xabc", Timestamp: 7})
	require.NoError(t, err)
	hm, err := CalculateHash(map[string]interface{}{"timestamp": 7, "createdBy": "0xabc"})
	require.NoError(t, err)

	assert.Equal(t, hs, hm)
}

func TestCheckHashMatches(t *testing.T) {
	v := map[string]interface{}{"x": "y"}
	digest, err := CalculateHash(v)
	require.NoError(t, err)

	assert.True(t, CheckHashMatches(digest, v))
	assert.False(t, CheckHashMatches(digest, map[string]interface{}{"x": "z"}))
	assert.False(t, CheckHashMatches("0xdeadbeef", v))
}

func TestTokenRoundTrip(t *testing.T) {
	pair, err := CreateKeyPair()
	require.NoError(t, err)

	now := time.Now()
	token, err := MintToken(pair.Secret, now.Add(time.Hour).Unix())
	require.NoError(t, err)
	assert.Equal(t, pair.Address, token.IDData.CreatedBy)

	encoded, err := EncodeToken(token)
	require.NoError(t, err)

	decoded, err := DecodeToken(encoded, now)
	require.NoError(t, err)
	assert.Equal(t, token, decoded)
}

func TestDecodeToken_Expired(t *testing.T) {
	pair, err := CreateKeyPair()
	require.NoError(t, err)

	now := time.Now()
	token, err := MintToken(pair.Secret, now.Add(-time.Minute).Unix())
	require.NoError(t, err)

	encoded, err := EncodeToken(token)
	require.NoError(t, err)

	_, err = DecodeToken(encoded, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestDecodeToken_Forged(t *testing.T) {
	alice, err := CreateKeyPair()
	require.NoError(t, err)
	bob, err := CreateKeyPair()
	require.NoError(t, err)

	token, err := MintToken(alice.Secret, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	// Claim to be bob while carrying alice's signature.
	token.IDData.CreatedBy = bob.Address
	encoded, err := EncodeToken(token)
	require.NoError(t, err)

	_, err = DecodeToken(encoded, time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestDecodeToken_Malformed(t *testing.T) {
	_, err := DecodeToken("%%%", time.Now())
	assert.True(t, apperrors.IsValidationError(err))

	_, err = DecodeToken("bm90LWpzb24=", time.Now())
	assert.True(t, apperrors.IsValidationError(err))
}
