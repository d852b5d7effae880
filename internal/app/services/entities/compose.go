package entities

import (
	"encoding/json"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

// ComposeAsset builds a fully signed, content-addressed asset for the holder
// of secret.
func ComposeAsset(secret *secp256k1.PrivateKey, timestamp, sequenceNumber int64) (entity.Asset, error) {
	idData := entity.AssetIDData{
		CreatedBy:      identity.AddressFromSecret(secret),
		Timestamp:      timestamp,
		SequenceNumber: sequenceNumber,
	}
	sig, err := identity.Sign(secret, idData)
	if err != nil {
		return entity.Asset{}, err
	}
	content := entity.AssetContent{IDData: idData, Signature: sig}
	id, err := identity.CalculateHash(content)
	if err != nil {
		return entity.Asset{}, err
	}
	return entity.Asset{AssetID: id, Content: content}, nil
}

// ComposeEvent builds a fully signed, content-addressed event about assetID.
// When data is non-empty it must be valid JSON; its content address is bound
// into the signed idData.
func ComposeEvent(secret *secp256k1.PrivateKey, assetID string, accessLevel int, timestamp int64, data json.RawMessage) (entity.Event, error) {
	idData := entity.EventIDData{
		CreatedBy:   identity.AddressFromSecret(secret),
		Timestamp:   timestamp,
		AssetID:     assetID,
		AccessLevel: accessLevel,
	}

	if len(data) > 0 {
		if !json.Valid(data) {
			return entity.Event{}, apperrors.NewValidationError("data", "malformed JSON")
		}
		hash, err := identity.CalculateHash(data)
		if err != nil {
			return entity.Event{}, err
		}
		idData.DataHash = hash
	}

	sig, err := identity.Sign(secret, idData)
	if err != nil {
		return entity.Event{}, err
	}
	content := entity.EventContent{IDData: idData, Signature: sig}
	id, err := identity.CalculateHash(content)
	if err != nil {
		return entity.Event{}, err
	}
	return entity.Event{EventID: id, Content: content, Data: data}, nil
}
