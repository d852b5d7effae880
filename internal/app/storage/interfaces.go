// Package storage defines the repository capability interfaces the core
// depends on. Implementations must provide read-after-write consistency;
// the repository is the sole serialization point between concurrent
// requests.
package storage

import (
	"context"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
)

// AccountStore persists account records.
type AccountStore interface {
	CountAccounts(ctx context.Context) (int64, error)
	GetAccount(ctx context.Context, address string) (account.Account, error)
	StoreAccount(ctx context.Context, acct account.Account) error
	UpdateAccount(ctx context.Context, address string, upd account.Update) (account.Account, error)
}

// EntityStore persists assets, events and bundles.
//
// BeginBundle is the one genuine concurrency coordination point in the
// system: it must atomically claim every not-yet-bundled entry under stubID
// so that concurrent finalization attempts never claim the same entry.
// Calling it again with the same stubID before EndBundle returns the
// already-claimed set, making a failed finalization retryable; after
// EndBundle the claim resolves and subsequent calls claim only new entries.
type EntityStore interface {
	StoreAsset(ctx context.Context, a entity.Asset) error
	GetAsset(ctx context.Context, id string) (entity.Asset, error)

	StoreEvent(ctx context.Context, e entity.Event) error
	// GetEvent returns the event only when its access level does not exceed
	// accessLevel; gated-out events surface as not found.
	GetEvent(ctx context.Context, id string, accessLevel int) (entity.Event, error)
	FindEvents(ctx context.Context, q entity.FindEventsQuery, accessLevel int) ([]entity.Event, error)

	BeginBundle(ctx context.Context, stubID string) (entity.Claim, error)
	EndBundle(ctx context.Context, stubID, bundleID string) error
	StoreBundle(ctx context.Context, b entity.Bundle) error
	GetBundle(ctx context.Context, id string) (entity.Bundle, error)
	StoreBundleProofBlock(ctx context.Context, bundleID string, blockNumber int64) error
}

// Store is the full persistence surface the application wires against.
type Store interface {
	AccountStore
	EntityStore
}
