package entities

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/accounts"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage/memory"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

type fixture struct {
	service *Service
	store   *memory.Store
	pair    identity.KeyPair
	token   *identity.Token
}

// newFixture registers a creator account with create_entity and a matching
// token at the given access level.
func newFixture(t *testing.T, accessLevel int) fixture {
	t.Helper()

	pair, err := identity.CreateKeyPair()
	if err != nil {
		t.Fatalf("create key pair: %v", err)
	}

	store := memory.New()
	if err := store.StoreAccount(context.Background(), account.Account{
		Address:     pair.Address,
		Permissions: []string{account.PermCreateEntity},
		AccessLevel: accessLevel,
	}); err != nil {
		t.Fatalf("store account: %v", err)
	}

	token, err := identity.MintToken(pair.Secret, time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	acctService := accounts.New(store, nil)
	return fixture{
		service: New(acctService, store, nil),
		store:   store,
		pair:    pair,
		token:   &token,
	}
}

func TestCreateAssetRequiresPermission(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	// A valid asset from a key with no registered account is rejected.
	stranger, err := identity.CreateKeyPair()
	if err != nil {
		t.Fatalf("create key pair: %v", err)
	}
	asset, err := ComposeAsset(stranger.Secret, time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("compose asset: %v", err)
	}
	if _, err := fx.service.CreateAsset(ctx, asset); !apperrors.IsPermissionError(err) {
		t.Fatalf("expected permission error, got %v", err)
	}

	asset, err = ComposeAsset(fx.pair.Secret, time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("compose asset: %v", err)
	}
	created, err := fx.service.CreateAsset(ctx, asset)
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}

	fetched, err := fx.service.GetAsset(ctx, created.AssetID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if fetched.AssetID != created.AssetID {
		t.Fatalf("unexpected asset %s", fetched.AssetID)
	}
}

func TestCreateEventRequiresExistingAsset(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	event, err := ComposeEvent(fx.pair.Secret, "0xmissing", 0, time.Now().Unix(), nil)
	if err != nil {
		t.Fatalf("compose event: %v", err)
	}
	if _, err := fx.service.CreateEvent(ctx, event); !apperrors.IsInvalidParameters(err) {
		t.Fatalf("expected invalid parameters error, got %v", err)
	}

	asset, err := ComposeAsset(fx.pair.Secret, time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("compose asset: %v", err)
	}
	if _, err := fx.service.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}

	event, err = ComposeEvent(fx.pair.Secret, asset.AssetID, 0, time.Now().Unix(), json.RawMessage(`{"ok":true}`))
	if err != nil {
		t.Fatalf("compose event: %v", err)
	}
	if _, err := fx.service.CreateEvent(ctx, event); err != nil {
		t.Fatalf("create event: %v", err)
	}
}

func TestGetEventAccessGate(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	asset, err := ComposeAsset(fx.pair.Secret, time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("compose asset: %v", err)
	}
	if _, err := fx.service.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}

	open, err := ComposeEvent(fx.pair.Secret, asset.AssetID, 0, 100, nil)
	if err != nil {
		t.Fatalf("compose open event: %v", err)
	}
	gated, err := ComposeEvent(fx.pair.Secret, asset.AssetID, 2, 200, nil)
	if err != nil {
		t.Fatalf("compose gated event: %v", err)
	}
	if _, err := fx.service.CreateEvent(ctx, open); err != nil {
		t.Fatalf("create open event: %v", err)
	}
	if _, err := fx.service.CreateEvent(ctx, gated); err != nil {
		t.Fatalf("create gated event: %v", err)
	}

	// Anonymous readers resolve to level 0: the gated event is absent.
	if _, err := fx.service.GetEvent(ctx, gated.EventID, nil); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found for anonymous reader, got %v", err)
	}
	if _, err := fx.service.GetEvent(ctx, open.EventID, nil); err != nil {
		t.Fatalf("open event must be anonymous-readable: %v", err)
	}

	// The creator's token resolves to level 2 and sees both.
	if _, err := fx.service.GetEvent(ctx, gated.EventID, fx.token); err != nil {
		t.Fatalf("gated event must be readable at level 2: %v", err)
	}

	events, err := fx.service.FindEvents(ctx, map[string]string{"assetId": asset.AssetID}, nil)
	if err != nil {
		t.Fatalf("find events anonymously: %v", err)
	}
	if len(events) != 1 || events[0].EventID != open.EventID {
		t.Fatalf("expected only the open event, got %d events", len(events))
	}

	events, err = fx.service.FindEvents(ctx, map[string]string{"assetId": asset.AssetID}, fx.token)
	if err != nil {
		t.Fatalf("find events with token: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected both events at level 2, got %d", len(events))
	}
}

func TestFindEventsDataFilter(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	asset, err := ComposeAsset(fx.pair.Secret, time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("compose asset: %v", err)
	}
	if _, err := fx.service.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}

	payloads := []string{`{"status":"sealed"}`, `{"status":"opened"}`}
	for i, p := range payloads {
		event, err := ComposeEvent(fx.pair.Secret, asset.AssetID, 0, int64(100+i), json.RawMessage(p))
		if err != nil {
			t.Fatalf("compose event %d: %v", i, err)
		}
		if _, err := fx.service.CreateEvent(ctx, event); err != nil {
			t.Fatalf("create event %d: %v", i, err)
		}
	}

	events, err := fx.service.FindEvents(ctx, map[string]string{
		"assetId":      asset.AssetID,
		"data[status]": "sealed",
	}, nil)
	if err != nil {
		t.Fatalf("find events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 matching event, got %d", len(events))
	}

	if _, err := fx.service.FindEvents(ctx, map[string]string{"nonsense": "1"}, nil); !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error for unknown filter, got %v", err)
	}
}
