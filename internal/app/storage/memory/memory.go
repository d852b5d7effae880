// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
)

// entryState tracks the bundle lifecycle of a stored asset or event.
type entryState struct {
	bundleStubID string
	bundleID     string
}

// Store is the in-memory store. All claim transitions happen under a single
// mutex, which makes BeginBundle trivially atomic.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]account.Account
	assets   map[string]entity.Asset
	events   map[string]entity.Event
	bundles  map[string]entity.Bundle
	states   map[string]*entryState // keyed by assetId/eventId
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]account.Account),
		assets:   make(map[string]entity.Asset),
		events:   make(map[string]entity.Event),
		bundles:  make(map[string]entity.Bundle),
		states:   make(map[string]*entryState),
	}
}

// AccountStore implementation ------------------------------------------------

func (s *Store) CountAccounts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}

func (s *Store) GetAccount(_ context.Context, address string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[address]
	if !ok {
		return account.Account{}, apperrors.NewNotFoundError("account", address)
	}
	return cloneAccount(acct), nil
}

func (s *Store) StoreAccount(_ context.Context, acct account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Address]; exists {
		return apperrors.NewValidationError("address", "account already registered")
	}
	s.accounts[acct.Address] = cloneAccount(acct)
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, address string, upd account.Update) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[address]
	if !ok {
		return account.Account{}, apperrors.NewNotFoundError("account", address)
	}
	if upd.Permissions != nil {
		acct.Permissions = append([]string(nil), (*upd.Permissions)...)
	}
	if upd.AccessLevel != nil {
		acct.AccessLevel = *upd.AccessLevel
	}
	s.accounts[address] = acct
	return cloneAccount(acct), nil
}

// EntityStore implementation -------------------------------------------------

func (s *Store) StoreAsset(_ context.Context, a entity.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[a.AssetID]; exists {
		return apperrors.NewValidationError("assetId", "asset already stored")
	}
	s.assets[a.AssetID] = a
	s.states[a.AssetID] = &entryState{}
	return nil
}

func (s *Store) GetAsset(_ context.Context, id string) (entity.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return entity.Asset{}, apperrors.NewNotFoundError("asset", id)
	}
	return s.stampAsset(a), nil
}

func (s *Store) StoreEvent(_ context.Context, e entity.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[e.EventID]; exists {
		return apperrors.NewValidationError("eventId", "event already stored")
	}
	s.events[e.EventID] = e
	s.states[e.EventID] = &entryState{}
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string, accessLevel int) (entity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok || e.Content.IDData.AccessLevel > accessLevel {
		return entity.Event{}, apperrors.NewNotFoundError("event", id)
	}
	return s.stampEvent(e), nil
}

func (s *Store) FindEvents(_ context.Context, q entity.FindEventsQuery, accessLevel int) ([]entity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]entity.Event, 0)
	for _, e := range s.events {
		if e.Content.IDData.AccessLevel > accessLevel {
			continue
		}
		if !storage.MatchEvent(e, q) {
			continue
		}
		matched = append(matched, s.stampEvent(e))
	}

	// Newest first, identifier as tiebreaker for a stable order.
	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].Content.IDData.Timestamp, matched[j].Content.IDData.Timestamp
		if ti != tj {
			return ti > tj
		}
		return matched[i].EventID < matched[j].EventID
	})

	return paginate(matched, q.Page, q.PerPage), nil
}

func paginate(events []entity.Event, page, perPage int) []entity.Event {
	if perPage <= 0 {
		return events
	}
	start := page * perPage
	if start >= len(events) {
		return []entity.Event{}
	}
	end := start + perPage
	if end > len(events) {
		end = len(events)
	}
	return events[start:end]
}

// BeginBundle atomically claims every unbundled entry under stubID. Entries
// already claimed by the same unresolved stub are included, so a crashed
// finalization can be retried with the same stub.
func (s *Store) BeginBundle(_ context.Context, stubID string) (entity.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claim entity.Claim
	for id, a := range s.assets {
		if s.claimLocked(id, stubID) {
			claim.Assets = append(claim.Assets, a)
		}
	}
	for id, e := range s.events {
		if s.claimLocked(id, stubID) {
			claim.Events = append(claim.Events, e)
		}
	}

	sort.Slice(claim.Assets, func(i, j int) bool { return claim.Assets[i].AssetID < claim.Assets[j].AssetID })
	sort.Slice(claim.Events, func(i, j int) bool { return claim.Events[i].EventID < claim.Events[j].EventID })
	return claim, nil
}

func (s *Store) claimLocked(id, stubID string) bool {
	st := s.states[id]
	if st == nil || st.bundleID != "" {
		return false
	}
	if st.bundleStubID == "" {
		st.bundleStubID = stubID
		return true
	}
	return st.bundleStubID == stubID
}

func (s *Store) EndBundle(_ context.Context, stubID, bundleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.states {
		if st.bundleStubID == stubID && st.bundleID == "" {
			st.bundleID = bundleID
			st.bundleStubID = ""
		}
	}
	return nil
}

func (s *Store) StoreBundle(_ context.Context, b entity.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bundles[b.BundleID]; exists {
		return apperrors.NewValidationError("bundleId", "bundle already stored")
	}
	s.bundles[b.BundleID] = b
	return nil
}

func (s *Store) GetBundle(_ context.Context, id string) (entity.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bundles[id]
	if !ok {
		return entity.Bundle{}, apperrors.NewNotFoundError("bundle", id)
	}
	return b, nil
}

func (s *Store) StoreBundleProofBlock(_ context.Context, bundleID string, blockNumber int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bundles[bundleID]
	if !ok {
		return apperrors.NewNotFoundError("bundle", bundleID)
	}
	meta := b.Metadata.Clone()
	if meta == nil {
		meta = entity.Metadata{}
	}
	meta[entity.MetaBundleProofBlock] = blockNumber
	b.Metadata = meta
	s.bundles[bundleID] = b
	return nil
}

// Stamp helpers: the claim columns are the source of truth for the bundle
// back-reference, so reads merge them into the returned document.

func (s *Store) stampAsset(a entity.Asset) entity.Asset {
	if st := s.states[a.AssetID]; st != nil && st.bundleID != "" {
		meta := a.Metadata.Clone()
		if meta == nil {
			meta = entity.Metadata{}
		}
		meta[entity.MetaBundleID] = st.bundleID
		a.Metadata = meta
	}
	return a
}

func (s *Store) stampEvent(e entity.Event) entity.Event {
	if st := s.states[e.EventID]; st != nil && st.bundleID != "" {
		meta := e.Metadata.Clone()
		if meta == nil {
			meta = entity.Metadata{}
		}
		meta[entity.MetaBundleID] = st.bundleID
		e.Metadata = meta
	}
	return e
}

func cloneAccount(acct account.Account) account.Account {
	acct.Permissions = append([]string(nil), acct.Permissions...)
	return acct
}
