package entities

import (
	"context"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// Authorizer answers the permission and access-level queries the entity
// use cases depend on.
type Authorizer interface {
	EnsureHasPermission(ctx context.Context, address, permission string) error
	GetTokenCreatorAccessLevel(ctx context.Context, token *identity.Token) (int, error)
}

// Service creates and reads assets and events, gating every operation by
// the caller's identity and access level.
type Service struct {
	accounts Authorizer
	store    storage.EntityStore
	log      *logger.Logger
}

// New constructs an entity service.
func New(accounts Authorizer, store storage.EntityStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("entities")
	}
	return &Service{accounts: accounts, store: store, log: log}
}

// CreateAsset validates, authorizes and persists an asset. The stored asset
// carries no bundle stamp.
func (s *Service) CreateAsset(ctx context.Context, a entity.Asset) (entity.Asset, error) {
	if err := ValidateAsset(a); err != nil {
		return entity.Asset{}, err
	}
	if err := s.accounts.EnsureHasPermission(ctx, a.Content.IDData.CreatedBy, account.PermCreateEntity); err != nil {
		return entity.Asset{}, err
	}

	a = StripAssetBundle(a)
	if err := s.store.StoreAsset(ctx, a); err != nil {
		return entity.Asset{}, err
	}
	s.log.WithField("asset_id", a.AssetID).Info("asset created")
	return a, nil
}

// GetAsset fetches an asset by identifier.
func (s *Service) GetAsset(ctx context.Context, id string) (entity.Asset, error) {
	return s.store.GetAsset(ctx, id)
}

// CreateEvent validates, authorizes and persists an event. The referenced
// asset must already exist; a dangling reference is an
// InvalidParametersError, not a validation failure.
func (s *Service) CreateEvent(ctx context.Context, e entity.Event) (entity.Event, error) {
	if err := ValidateEvent(e); err != nil {
		return entity.Event{}, err
	}
	if err := s.accounts.EnsureHasPermission(ctx, e.Content.IDData.CreatedBy, account.PermCreateEntity); err != nil {
		return entity.Event{}, err
	}

	if _, err := s.store.GetAsset(ctx, e.Content.IDData.AssetID); err != nil {
		if apperrors.IsNotFound(err) {
			return entity.Event{}, apperrors.NewInvalidParametersError(
				"event references nonexistent asset " + e.Content.IDData.AssetID)
		}
		return entity.Event{}, err
	}

	e = StripEventBundle(e)
	if err := s.store.StoreEvent(ctx, e); err != nil {
		return entity.Event{}, err
	}
	s.log.WithField("event_id", e.EventID).WithField("asset_id", e.Content.IDData.AssetID).Info("event created")
	return e, nil
}

// GetEvent fetches an event visible at the access level resolved from the
// token. Gated-out and absent events are indistinguishable.
func (s *Service) GetEvent(ctx context.Context, id string, token *identity.Token) (entity.Event, error) {
	level, err := s.accounts.GetTokenCreatorAccessLevel(ctx, token)
	if err != nil {
		return entity.Event{}, err
	}
	return s.store.GetEvent(ctx, id, level)
}

// FindEvents validates the raw filter and runs a level-filtered query.
func (s *Service) FindEvents(ctx context.Context, params map[string]string, token *identity.Token) ([]entity.Event, error) {
	q, err := ValidateAndCastFindEventsParams(params)
	if err != nil {
		return nil, err
	}
	level, err := s.accounts.GetTokenCreatorAccessLevel(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.FindEvents(ctx, q, level)
}
