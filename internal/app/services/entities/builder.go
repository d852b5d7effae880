// Package entities implements structural validation and content addressing
// for assets and events, and the use-case layer creating and reading them.
package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

// decodeStrict unmarshals raw into v rejecting unknown object keys at every
// struct level. Opaque areas (metadata, event data) are typed as maps or raw
// messages and deliberately escape the check.
func decodeStrict(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("", err.Error())
	}
	// Trailing garbage after the document is also a client fault.
	if dec.More() {
		return apperrors.NewValidationError("", "unexpected trailing data")
	}
	return nil
}

// requirePresent walks a decoded generic document and fails when a required
// dotted path is absent. Presence has to be checked on the raw document:
// a zero value in the typed struct is indistinguishable from an omitted field.
func requirePresent(raw []byte, paths ...string) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperrors.NewValidationError("", "not a JSON object")
	}
	for _, path := range paths {
		node := doc
		parts := strings.Split(path, ".")
		for i, part := range parts {
			val, ok := node[part]
			if !ok {
				return apperrors.RequiredError(path)
			}
			if i < len(parts)-1 {
				node, ok = val.(map[string]interface{})
				if !ok {
					return apperrors.NewValidationError(path, "is not an object")
				}
			}
		}
	}
	return nil
}

// ParseAsset strictly decodes and fully validates an incoming asset document.
func ParseAsset(raw []byte) (entity.Asset, error) {
	var a entity.Asset
	if err := decodeStrict(raw, &a); err != nil {
		return entity.Asset{}, err
	}
	if err := requirePresent(raw,
		"assetId",
		"content.idData.createdBy",
		"content.idData.timestamp",
		"content.signature",
	); err != nil {
		return entity.Asset{}, err
	}
	if err := ValidateAsset(a); err != nil {
		return entity.Asset{}, err
	}
	return a, nil
}

// ValidateAsset checks structural validity, content addressing and the
// creator signature of an asset. It never touches the repository.
func ValidateAsset(a entity.Asset) error {
	if a.AssetID == "" {
		return apperrors.RequiredError("assetId")
	}
	if a.Content.IDData.CreatedBy == "" {
		return apperrors.RequiredError("content.idData.createdBy")
	}
	if a.Content.Signature == "" {
		return apperrors.RequiredError("content.signature")
	}
	if a.Content.IDData.Timestamp < 0 {
		return apperrors.NewValidationError("content.idData.timestamp", "must be a non-negative integer")
	}
	if a.Content.IDData.SequenceNumber < 0 {
		return apperrors.NewValidationError("content.idData.sequenceNumber", "must be a non-negative integer")
	}
	if !identity.CheckHashMatches(a.AssetID, a.Content) {
		return apperrors.NewValidationError("assetId", "does not match content hash")
	}
	return identity.ValidateSignature(a.Content.IDData.CreatedBy, a.Content.Signature, a.Content.IDData)
}

// ParseEvent strictly decodes and fully validates an incoming event document.
func ParseEvent(raw []byte) (entity.Event, error) {
	var e entity.Event
	if err := decodeStrict(raw, &e); err != nil {
		return entity.Event{}, err
	}
	if err := requirePresent(raw,
		"eventId",
		"content.idData.createdBy",
		"content.idData.timestamp",
		"content.idData.assetId",
		"content.idData.accessLevel",
		"content.signature",
	); err != nil {
		return entity.Event{}, err
	}
	if err := ValidateEvent(e); err != nil {
		return entity.Event{}, err
	}
	return e, nil
}

// ValidateEvent checks structural validity, content addressing, payload
// binding and the creator signature of an event. Existence of the referenced
// asset is the orchestrator's concern.
func ValidateEvent(e entity.Event) error {
	if e.EventID == "" {
		return apperrors.RequiredError("eventId")
	}
	if e.Content.IDData.CreatedBy == "" {
		return apperrors.RequiredError("content.idData.createdBy")
	}
	if e.Content.IDData.AssetID == "" {
		return apperrors.RequiredError("content.idData.assetId")
	}
	if e.Content.Signature == "" {
		return apperrors.RequiredError("content.signature")
	}
	if e.Content.IDData.Timestamp < 0 {
		return apperrors.NewValidationError("content.idData.timestamp", "must be a non-negative integer")
	}
	if e.Content.IDData.AccessLevel < 0 {
		return apperrors.NewValidationError("content.idData.accessLevel", "must be a non-negative integer")
	}

	if len(e.Data) > 0 {
		if e.Content.IDData.DataHash == "" {
			return apperrors.RequiredError("content.idData.dataHash")
		}
		if !json.Valid(e.Data) {
			return apperrors.NewValidationError("data", "malformed JSON")
		}
		// Hash the raw bytes: decoding into interface{} would round large
		// integers through float64 and change the digest.
		if !identity.CheckHashMatches(e.Content.IDData.DataHash, e.Data) {
			return apperrors.NewValidationError("content.idData.dataHash", "does not match data hash")
		}
	}

	if !identity.CheckHashMatches(e.EventID, e.Content) {
		return apperrors.NewValidationError("eventId", "does not match content hash")
	}
	return identity.ValidateSignature(e.Content.IDData.CreatedBy, e.Content.Signature, e.Content.IDData)
}

// SetAssetBundle returns a copy of the asset with its bundle stamp set, or
// cleared when bundleID is nil. The stamp is metadata only and never part of
// the hashed content.
func SetAssetBundle(a entity.Asset, bundleID *string) entity.Asset {
	a.Metadata = setBundleStamp(a.Metadata, bundleID)
	return a
}

// SetEventBundle is SetAssetBundle for events.
func SetEventBundle(e entity.Event, bundleID *string) entity.Event {
	e.Metadata = setBundleStamp(e.Metadata, bundleID)
	return e
}

func setBundleStamp(m entity.Metadata, bundleID *string) entity.Metadata {
	out := m.Clone()
	if bundleID == nil {
		if out == nil {
			return nil
		}
		delete(out, entity.MetaBundleID)
		delete(out, entity.MetaBundleStubID)
		if len(out) == 0 {
			return nil
		}
		return out
	}
	if out == nil {
		out = entity.Metadata{}
	}
	out[entity.MetaBundleID] = *bundleID
	delete(out, entity.MetaBundleStubID)
	return out
}

// StripAssetBundle removes the bundle stamp so re-hashing operates over
// bundle-independent content. Inverse of SetAssetBundle.
func StripAssetBundle(a entity.Asset) entity.Asset {
	return SetAssetBundle(a, nil)
}

// StripEventBundle is StripAssetBundle for events.
func StripEventBundle(e entity.Event) entity.Event {
	return SetEventBundle(e, nil)
}

// PrepareEventForBundlePublication produces the publication form of an
// event. Access-restricted events (accessLevel > 0) are reduced to a stub of
// identifier and signed content: the bundle proves existence and integrity
// without disclosing the gated payload, which stays verifiable through
// idData.dataHash.
func PrepareEventForBundlePublication(e entity.Event) entity.Event {
	stub := entity.Event{EventID: e.EventID, Content: e.Content}
	if e.Content.IDData.AccessLevel == 0 {
		stub.Data = e.Data
	}
	return stub
}

const (
	defaultFindPerPage = 100
	maxFindPerPage     = 1000
)

// ValidateAndCastFindEventsParams normalizes a raw query filter. Keys of the
// form data[<path>] match against the event payload; any other unrecognized
// key fails with a ValidationError.
func ValidateAndCastFindEventsParams(params map[string]string) (entity.FindEventsQuery, error) {
	q := entity.FindEventsQuery{PerPage: defaultFindPerPage}

	for key, value := range params {
		switch {
		case key == "assetId":
			q.AssetID = value
		case key == "createdBy":
			q.CreatedBy = value
		case key == "fromTimestamp":
			ts, err := castTimestamp(key, value)
			if err != nil {
				return entity.FindEventsQuery{}, err
			}
			q.FromTimestamp = &ts
		case key == "toTimestamp":
			ts, err := castTimestamp(key, value)
			if err != nil {
				return entity.FindEventsQuery{}, err
			}
			q.ToTimestamp = &ts
		case key == "page":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return entity.FindEventsQuery{}, apperrors.NewValidationError(key, "must be a non-negative integer")
			}
			q.Page = n
		case key == "perPage":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > maxFindPerPage {
				return entity.FindEventsQuery{}, apperrors.NewValidationError(key,
					fmt.Sprintf("must be an integer between 1 and %d", maxFindPerPage))
			}
			q.PerPage = n
		case strings.HasPrefix(key, "data[") && strings.HasSuffix(key, "]"):
			path := key[len("data[") : len(key)-1]
			if path == "" {
				return entity.FindEventsQuery{}, apperrors.NewValidationError(key, "empty data path")
			}
			if q.Data == nil {
				q.Data = make(map[string]string)
			}
			q.Data[path] = value
		default:
			return entity.FindEventsQuery{}, apperrors.NewValidationError(key, "unsupported filter")
		}
	}

	return q, nil
}

func castTimestamp(key, value string) (int64, error) {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ts < 0 {
		return 0, apperrors.NewValidationError(key, "must be a non-negative integer")
	}
	return ts, nil
}
