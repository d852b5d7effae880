package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

func composeTestAsset(t *testing.T) entity.Asset {
	t.Helper()
	pair, err := identity.CreateKeyPair()
	if err != nil {
		t.Fatalf("create key pair: %v", err)
	}
	asset, err := ComposeAsset(pair.Secret, time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("compose asset: %v", err)
	}
	return asset
}

func composeTestEvent(t *testing.T, assetID string, accessLevel int, data json.RawMessage) entity.Event {
	t.Helper()
	pair, err := identity.CreateKeyPair()
	if err != nil {
		t.Fatalf("create key pair: %v", err)
	}
	event, err := ComposeEvent(pair.Secret, assetID, accessLevel, time.Now().Unix(), data)
	if err != nil {
		t.Fatalf("compose event: %v", err)
	}
	return event
}

func TestParseAssetRoundTrip(t *testing.T) {
	asset := composeTestAsset(t)

	raw, err := json.Marshal(asset)
	if err != nil {
		t.Fatalf("marshal asset: %v", err)
	}
	parsed, err := ParseAsset(raw)
	if err != nil {
		t.Fatalf("parse composed asset: %v", err)
	}
	if parsed.AssetID != asset.AssetID {
		t.Fatalf("asset id changed across round trip")
	}
}

func TestParseAssetRejectsTampering(t *testing.T) {
	asset := composeTestAsset(t)

	forged := asset
	forged.AssetID = "0x" + asset.AssetID[3:] + "0"
	if err := ValidateAsset(forged); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error for forged id, got %v", err)
	}

	tampered := asset
	tampered.Content.IDData.SequenceNumber++
	if err := ValidateAsset(tampered); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error for tampered content, got %v", err)
	}

	other := composeTestAsset(t)
	swapped := asset
	swapped.Content.IDData.CreatedBy = other.Content.IDData.CreatedBy
	if err := ValidateAsset(swapped); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error for wrong creator, got %v", err)
	}
}

func TestParseAssetRejectsMalformedDocuments(t *testing.T) {
	asset := composeTestAsset(t)
	raw, _ := json.Marshal(asset)

	cases := map[string][]byte{
		"unknown field": []byte(`{"assetId":"0x1","content":{"idData":{"createdBy":"0x2","timestamp":1,"sequenceNumber":0},"signature":"0x3"},"bogus":1}`),
		"missing id":    []byte(`{"content":{"idData":{"createdBy":"0x2","timestamp":1,"sequenceNumber":0},"signature":"0x3"}}`),
		"missing sig":   []byte(`{"assetId":"0x1","content":{"idData":{"createdBy":"0x2","timestamp":1,"sequenceNumber":0}}}`),
		"not json":      []byte(`{{`),
		"trailing data": append(append([]byte{}, raw...), []byte(`{"again":true}`)...),
	}
	for name, doc := range cases {
		if _, err := ParseAsset(doc); !apperrors.IsValidationError(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseEventRoundTripWithData(t *testing.T) {
	data := json.RawMessage(`{"temperature":21.5,"unit":"C"}`)
	event := composeTestEvent(t, "0xasset", 0, data)

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	parsed, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("parse composed event: %v", err)
	}
	if parsed.EventID != event.EventID {
		t.Fatalf("event id changed across round trip")
	}
	if parsed.Content.IDData.DataHash == "" {
		t.Fatalf("expected data hash to be bound into signed content")
	}
}

func TestEventDataHashPreservesLargeIntegers(t *testing.T) {
	// 2^53+1 is not representable as float64; the payload must be hashed
	// verbatim, not via a lossy decode.
	data := json.RawMessage(`{"n":9007199254740993}`)
	event := composeTestEvent(t, "0xasset", 0, data)

	if err := ValidateEvent(event); err != nil {
		t.Fatalf("validate event with large integer payload: %v", err)
	}

	// A client hashing the canonical payload bytes itself must agree.
	want, err := identity.CalculateHash(data)
	if err != nil {
		t.Fatalf("calculate hash: %v", err)
	}
	if event.Content.IDData.DataHash != want {
		t.Fatalf("expected data hash %s, got %s", want, event.Content.IDData.DataHash)
	}
}

func TestValidateEventRejectsPayloadSubstitution(t *testing.T) {
	event := composeTestEvent(t, "0xasset", 0, json.RawMessage(`{"status":"sealed"}`))

	event.Data = json.RawMessage(`{"status":"opened"}`)
	if err := ValidateEvent(event); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error for substituted payload, got %v", err)
	}

	// Payload without a binding hash is equally invalid.
	unbound := composeTestEvent(t, "0xasset", 0, nil)
	unbound.Data = json.RawMessage(`{"status":"sealed"}`)
	if err := ValidateEvent(unbound); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error for unbound payload, got %v", err)
	}
}

func TestEventIDSurvivesPayloadRedaction(t *testing.T) {
	event := composeTestEvent(t, "0xasset", 3, json.RawMessage(`{"secret":"recipe"}`))

	redacted := event
	redacted.Data = nil
	if err := ValidateEvent(redacted); err != nil {
		t.Fatalf("redacted event must stay valid: %v", err)
	}
	if redacted.EventID != event.EventID {
		t.Fatalf("redaction must not change the event id")
	}
}

func TestBundleStamp(t *testing.T) {
	asset := composeTestAsset(t)
	id := "0xbundle"

	stamped := SetAssetBundle(asset, &id)
	if got, _ := stamped.Metadata.BundleID(); got != id {
		t.Fatalf("expected bundle stamp %s, got %q", id, got)
	}
	if asset.Metadata != nil {
		t.Fatalf("stamping must not mutate the original")
	}

	stripped := StripAssetBundle(stamped)
	if stripped.Metadata != nil {
		t.Fatalf("expected empty metadata after strip, got %v", stripped.Metadata)
	}
	if err := ValidateAsset(stripped); err != nil {
		t.Fatalf("stripped asset must stay valid: %v", err)
	}
}

func TestPrepareEventForBundlePublication(t *testing.T) {
	open := composeTestEvent(t, "0xasset", 0, json.RawMessage(`{"visible":true}`))
	published := PrepareEventForBundlePublication(open)
	if len(published.Data) == 0 {
		t.Fatalf("open events keep their payload in the bundle")
	}

	gated := composeTestEvent(t, "0xasset", 2, json.RawMessage(`{"visible":false}`))
	published = PrepareEventForBundlePublication(gated)
	if len(published.Data) != 0 {
		t.Fatalf("gated events must be reduced to a stub")
	}
	if published.EventID != gated.EventID || published.Content.Signature != gated.Content.Signature {
		t.Fatalf("stub must keep identifier and signed content")
	}
}

func TestValidateAndCastFindEventsParams(t *testing.T) {
	q, err := ValidateAndCastFindEventsParams(map[string]string{
		"assetId":       "0xasset",
		"createdBy":     "0xalice",
		"fromTimestamp": "100",
		"toTimestamp":   "200",
		"page":          "2",
		"perPage":       "50",
		"data[status]":  "sealed",
	})
	if err != nil {
		t.Fatalf("valid params: %v", err)
	}
	if q.AssetID != "0xasset" || q.CreatedBy != "0xalice" {
		t.Fatalf("unexpected query %+v", q)
	}
	if q.FromTimestamp == nil || *q.FromTimestamp != 100 || q.ToTimestamp == nil || *q.ToTimestamp != 200 {
		t.Fatalf("timestamps not cast: %+v", q)
	}
	if q.Page != 2 || q.PerPage != 50 {
		t.Fatalf("pagination not cast: %+v", q)
	}
	if q.Data["status"] != "sealed" {
		t.Fatalf("data filter not cast: %+v", q)
	}

	q, err = ValidateAndCastFindEventsParams(nil)
	if err != nil {
		t.Fatalf("empty params: %v", err)
	}
	if q.PerPage != defaultFindPerPage {
		t.Fatalf("expected default page size %d, got %d", defaultFindPerPage, q.PerPage)
	}

	invalid := map[string]map[string]string{
		"unknown key":        {"color": "red"},
		"bad timestamp":      {"fromTimestamp": "yesterday"},
		"negative timestamp": {"toTimestamp": "-1"},
		"bad page":           {"page": "-1"},
		"oversized perPage":  {"perPage": "100000"},
		"empty data path":    {"data[]": "x"},
	}
	for name, params := range invalid {
		if _, err := ValidateAndCastFindEventsParams(params); !apperrors.IsValidationError(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
