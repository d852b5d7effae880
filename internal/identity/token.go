package identity

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
)

// Token is a detached, signed capability naming its creator. Read access
// levels and account operations resolve against IDData.CreatedBy once the
// signature checks out.
type Token struct {
	IDData    TokenIDData `json:"idData"`
	Signature string      `json:"signature"`
}

// TokenIDData is the signed portion of a token.
type TokenIDData struct {
	CreatedBy  string `json:"createdBy"`
	ValidUntil int64  `json:"validUntil"`
}

// MintToken issues a token for the holder of secret, valid until the given
// unix timestamp.
func MintToken(secret *secp256k1.PrivateKey, validUntil int64) (Token, error) {
	idData := TokenIDData{
		CreatedBy:  AddressFromSecret(secret),
		ValidUntil: validUntil,
	}
	sig, err := Sign(secret, idData)
	if err != nil {
		return Token{}, err
	}
	return Token{IDData: idData, Signature: sig}, nil
}

// EncodeToken serializes a token for transport (base64 over JSON).
func EncodeToken(t Token) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeToken parses a transported token and verifies its signature and
// expiry against now. Malformed, forged and expired tokens all fail with a
// ValidationError.
func DecodeToken(encoded string, now time.Time) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, apperrors.NewValidationError("token", "malformed base64")
	}

	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, apperrors.NewValidationError("token", "malformed JSON")
	}
	if t.IDData.CreatedBy == "" {
		return Token{}, apperrors.RequiredError("token.idData.createdBy")
	}
	if t.IDData.ValidUntil < now.Unix() {
		return Token{}, apperrors.NewValidationError("token", "expired")
	}
	if err := ValidateSignature(t.IDData.CreatedBy, t.Signature, t.IDData); err != nil {
		return Token{}, err
	}
	return t, nil
}
