// Package entity defines the content-addressed records of the provenance
// layer: assets, events and the bundles that batch them for anchoring.
//
// Content addresses are keccak-256 digests over the canonical serialization
// of each record's content. Everything under content is immutable once
// stored; the bundle back-reference lives in the unhashed metadata area.
package entity

import "encoding/json"

// Metadata is the opaque, unhashed extension area of a record. The bundle
// stamp and the ledger anchor block live here; everything else passes
// through unvalidated.
type Metadata map[string]interface{}

// Well-known metadata keys.
const (
	MetaBundleID         = "bundleId"
	MetaBundleStubID     = "bundleStubId"
	MetaBundleProofBlock = "bundleProofBlock"
)

// BundleID returns the bundle stamp, if set.
func (m Metadata) BundleID() (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m[MetaBundleID].(string)
	return id, ok && id != ""
}

// Clone returns a shallow copy so stamping never mutates a caller's value.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Asset is an immutable subject record. AssetID is the content address of
// Content.
type Asset struct {
	AssetID  string       `json:"assetId"`
	Content  AssetContent `json:"content"`
	Metadata Metadata     `json:"metadata,omitempty"`
}

// AssetContent is the hashed portion of an asset.
type AssetContent struct {
	IDData    AssetIDData `json:"idData"`
	Signature string      `json:"signature"`
}

// AssetIDData is the signed portion of an asset.
type AssetIDData struct {
	CreatedBy      string `json:"createdBy"`
	Timestamp      int64  `json:"timestamp"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// Event is an immutable observation about exactly one asset. EventID is the
// content address of Content. Data sits outside Content so publication
// redaction never invalidates the event identifier; IDData.DataHash binds
// the payload to the signed content.
type Event struct {
	EventID  string          `json:"eventId"`
	Content  EventContent    `json:"content"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata Metadata        `json:"metadata,omitempty"`
}

// EventContent is the hashed portion of an event.
type EventContent struct {
	IDData    EventIDData `json:"idData"`
	Signature string      `json:"signature"`
}

// EventIDData is the signed portion of an event.
type EventIDData struct {
	CreatedBy   string `json:"createdBy"`
	Timestamp   int64  `json:"timestamp"`
	AssetID     string `json:"assetId"`
	AccessLevel int    `json:"accessLevel"`
	DataHash    string `json:"dataHash,omitempty"`
}

// Bundle batches stripped assets and redacted events into a signed,
// hash-linked artifact suitable for ledger anchoring. BundleID is the
// content address of Content; IDData.EntriesHash is the content address of
// Content.Entries.
type Bundle struct {
	BundleID string        `json:"bundleId"`
	Content  BundleContent `json:"content"`
	Metadata Metadata      `json:"metadata,omitempty"`
}

// BundleContent is the hashed portion of a bundle. Entries are kept as raw
// documents: a bundle proves their integrity collectively via EntriesHash
// and never re-validates individual entries.
type BundleContent struct {
	IDData    BundleIDData      `json:"idData"`
	Signature string            `json:"signature"`
	Entries   []json.RawMessage `json:"entries"`
}

// BundleIDData is the signed portion of a bundle.
type BundleIDData struct {
	CreatedBy   string `json:"createdBy"`
	Timestamp   int64  `json:"timestamp"`
	EntriesHash string `json:"entriesHash"`
}

// FindEventsQuery is a normalized, validated event filter.
type FindEventsQuery struct {
	AssetID       string
	CreatedBy     string
	FromTimestamp *int64
	ToTimestamp   *int64
	// Data maps a gjson path within the event payload to a required value.
	Data    map[string]string
	Page    int
	PerPage int
}

// Claim is the result of an exclusive beginBundle claim.
type Claim struct {
	Assets []Asset
	Events []Event
}

// Empty reports whether the claim holds no entries.
func (c Claim) Empty() bool {
	return len(c.Assets) == 0 && len(c.Events) == 0
}
