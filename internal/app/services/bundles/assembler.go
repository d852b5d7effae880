// Package bundles implements bundle assembly, verification and the
// finalisation pipeline that batches unbundled entries into signed,
// hash-linked artifacts and anchors them to the ledger.
package bundles

import (
	"bytes"
	"encoding/json"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/entities"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

// AssembleBundle builds a signed, content-addressed bundle over the claimed
// assets and events. Entries are stripped of their bundle stamps so the
// collection hash is bundle-independent, and access-restricted events are
// reduced to their publication stubs. The transformation is deterministic
// given its inputs and the signing key.
func AssembleBundle(assets []entity.Asset, events []entity.Event, timestamp int64, creatorSecret *secp256k1.PrivateKey) (entity.Bundle, error) {
	entries := make([]json.RawMessage, 0, len(assets)+len(events))

	for _, a := range assets {
		raw, err := json.Marshal(entities.StripAssetBundle(a))
		if err != nil {
			return entity.Bundle{}, err
		}
		entries = append(entries, raw)
	}
	for _, e := range events {
		stub := entities.PrepareEventForBundlePublication(entities.StripEventBundle(e))
		raw, err := json.Marshal(stub)
		if err != nil {
			return entity.Bundle{}, err
		}
		entries = append(entries, raw)
	}

	entriesHash, err := identity.CalculateHash(entries)
	if err != nil {
		return entity.Bundle{}, err
	}

	idData := entity.BundleIDData{
		CreatedBy:   identity.AddressFromSecret(creatorSecret),
		Timestamp:   timestamp,
		EntriesHash: entriesHash,
	}
	signature, err := identity.Sign(creatorSecret, idData)
	if err != nil {
		return entity.Bundle{}, err
	}

	content := entity.BundleContent{
		IDData:    idData,
		Signature: signature,
		Entries:   entries,
	}
	bundleID, err := identity.CalculateHash(content)
	if err != nil {
		return entity.Bundle{}, err
	}

	return entity.Bundle{BundleID: bundleID, Content: content}, nil
}

// ParseBundle strictly decodes a received bundle document and runs the full
// verification. Unknown keys at the bundle, content and idData levels are
// rejected; entries and metadata stay opaque.
func ParseBundle(raw []byte) (entity.Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var b entity.Bundle
	if err := dec.Decode(&b); err != nil {
		return entity.Bundle{}, apperrors.NewValidationError("", err.Error())
	}
	if dec.More() {
		return entity.Bundle{}, apperrors.NewValidationError("", "unexpected trailing data")
	}
	if err := ValidateBundle(b); err != nil {
		return entity.Bundle{}, err
	}
	return b, nil
}

// ValidateBundle independently verifies a bundle's internal consistency:
// required fields first, then the two content addresses, then the creator
// signature. Cheap structural checks run before any hashing.
func ValidateBundle(b entity.Bundle) error {
	if b.BundleID == "" {
		return apperrors.RequiredError("bundleId")
	}
	if b.Content.Signature == "" {
		return apperrors.RequiredError("content.signature")
	}
	if b.Content.IDData.CreatedBy == "" {
		return apperrors.RequiredError("content.idData.createdBy")
	}
	if b.Content.IDData.EntriesHash == "" {
		return apperrors.RequiredError("content.idData.entriesHash")
	}
	if b.Content.IDData.Timestamp < 0 {
		return apperrors.NewValidationError("content.idData.timestamp", "must be a non-negative integer")
	}
	if b.Content.Entries == nil {
		return apperrors.RequiredError("content.entries")
	}

	if !identity.CheckHashMatches(b.Content.IDData.EntriesHash, b.Content.Entries) {
		return apperrors.NewValidationError("content.idData.entriesHash", "does not match entries hash")
	}
	if !identity.CheckHashMatches(b.BundleID, b.Content) {
		return apperrors.NewValidationError("bundleId", "does not match content hash")
	}
	return identity.ValidateSignature(b.Content.IDData.CreatedBy, b.Content.Signature, b.Content.IDData)
}
