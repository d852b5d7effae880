package bundles

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/entities"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage/memory"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

type fakeUploader struct {
	calls []string
	block int64
	err   error
}

func (u *fakeUploader) UploadProof(_ context.Context, bundleID string) (int64, error) {
	u.calls = append(u.calls, bundleID)
	if u.err != nil {
		return 0, u.err
	}
	return u.block, nil
}

func seedEntries(t *testing.T, store *memory.Store, assets, events int) {
	t.Helper()
	ctx := context.Background()

	creator, err := identity.CreateKeyPair()
	if err != nil {
		t.Fatalf("create creator key: %v", err)
	}
	var firstAsset string
	for i := 0; i < assets; i++ {
		a, err := entities.ComposeAsset(creator.Secret, int64(100+i), int64(i))
		if err != nil {
			t.Fatalf("compose asset %d: %v", i, err)
		}
		if err := store.StoreAsset(ctx, a); err != nil {
			t.Fatalf("store asset %d: %v", i, err)
		}
		if firstAsset == "" {
			firstAsset = a.AssetID
		}
	}
	for i := 0; i < events; i++ {
		e, err := entities.ComposeEvent(creator.Secret, firstAsset, i%2, int64(200+i), json.RawMessage(`{"n":`+string(rune('0'+i))+`}`))
		if err != nil {
			t.Fatalf("compose event %d: %v", i, err)
		}
		if err := store.StoreEvent(ctx, e); err != nil {
			t.Fatalf("store event %d: %v", i, err)
		}
	}
}

func newTestService(t *testing.T, store *memory.Store, uploader ProofUploader) *Service {
	t.Helper()
	node, err := identity.CreateKeyPair()
	if err != nil {
		t.Fatalf("create node key: %v", err)
	}
	return New(store, uploader, node.Secret, nil, nil)
}

func TestFinaliseBundle(t *testing.T) {
	store := memory.New()
	seedEntries(t, store, 2, 3)
	uploader := &fakeUploader{block: 42}
	svc := newTestService(t, store, uploader)
	ctx := context.Background()

	bundle, err := svc.FinaliseBundle(ctx, "stub-1")
	if err != nil {
		t.Fatalf("finalise: %v", err)
	}
	if len(bundle.Content.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(bundle.Content.Entries))
	}
	if err := ValidateBundle(bundle); err != nil {
		t.Fatalf("finalised bundle invalid: %v", err)
	}
	if len(uploader.calls) != 1 || uploader.calls[0] != bundle.BundleID {
		t.Fatalf("expected one proof upload for %s, got %v", bundle.BundleID, uploader.calls)
	}

	stored, err := svc.GetBundle(ctx, bundle.BundleID)
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if block, ok := stored.Metadata[entity.MetaBundleProofBlock].(int64); !ok || block != 42 {
		t.Fatalf("expected proof block 42 in metadata, got %v", stored.Metadata[entity.MetaBundleProofBlock])
	}

	// Entries now carry the bundle back-reference.
	var published entity.Asset
	if err := json.Unmarshal(bundle.Content.Entries[0], &published); err != nil {
		t.Fatalf("unmarshal published asset: %v", err)
	}
	fetched, err := store.GetAsset(ctx, published.AssetID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if got, _ := fetched.Metadata.BundleID(); got != bundle.BundleID {
		t.Fatalf("expected asset stamped with %s, got %q", bundle.BundleID, got)
	}

	// Everything is bundled; the next claim is empty.
	if _, err := svc.FinaliseBundle(ctx, "stub-2"); !errors.Is(err, ErrEmptyClaim) {
		t.Fatalf("expected ErrEmptyClaim, got %v", err)
	}
}

func TestFinaliseBundleSurvivesAnchorFailure(t *testing.T) {
	store := memory.New()
	seedEntries(t, store, 1, 1)
	uploader := &fakeUploader{err: errors.New("ledger down")}
	svc := newTestService(t, store, uploader)
	ctx := context.Background()

	bundle, err := svc.FinaliseBundle(ctx, "stub-1")
	if err == nil {
		t.Fatalf("expected anchor failure to surface")
	}
	if bundle.BundleID == "" {
		t.Fatalf("failed anchor must still return the stored bundle")
	}

	// The bundle is retrievable and its claim resolved despite the failure.
	if _, err := svc.GetBundle(ctx, bundle.BundleID); err != nil {
		t.Fatalf("bundle must be stored before anchoring: %v", err)
	}
	if _, err := svc.FinaliseBundle(ctx, "stub-2"); !errors.Is(err, ErrEmptyClaim) {
		t.Fatalf("claim must be resolved even when anchoring fails, got %v", err)
	}

	// Recovery: re-anchor the stored bundle once the ledger is back.
	uploader.err = nil
	uploader.block = 7
	block, err := svc.RetryAnchor(ctx, bundle.BundleID)
	if err != nil {
		t.Fatalf("retry anchor: %v", err)
	}
	if block != 7 {
		t.Fatalf("expected block 7, got %d", block)
	}

	stored, err := svc.GetBundle(ctx, bundle.BundleID)
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if blockMeta, ok := stored.Metadata[entity.MetaBundleProofBlock].(int64); !ok || blockMeta != 7 {
		t.Fatalf("expected proof block 7 in metadata, got %v", stored.Metadata[entity.MetaBundleProofBlock])
	}
}

func TestRetryAnchorUnknownBundle(t *testing.T) {
	svc := newTestService(t, memory.New(), &fakeUploader{block: 1})
	if _, err := svc.RetryAnchor(context.Background(), "0xmissing"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFinaliseBundleClaimIsRetryable(t *testing.T) {
	store := memory.New()
	seedEntries(t, store, 1, 2)
	ctx := context.Background()

	// Simulate a crash between claim and assembly: the first claim succeeds
	// but nothing is stored.
	firstClaim, err := store.BeginBundle(ctx, "stub-crashed")
	if err != nil {
		t.Fatalf("begin bundle: %v", err)
	}
	if firstClaim.Empty() {
		t.Fatalf("expected entries in the first claim")
	}

	// A different stub gets nothing while the first claim is unresolved.
	other, err := store.BeginBundle(ctx, "stub-other")
	if err != nil {
		t.Fatalf("begin other bundle: %v", err)
	}
	if !other.Empty() {
		t.Fatalf("claimed entries must be exclusive to their stub")
	}

	// Retrying under the crashed stub completes the pipeline.
	svc := newTestService(t, store, &fakeUploader{block: 9})
	bundle, err := svc.FinaliseBundle(ctx, "stub-crashed")
	if err != nil {
		t.Fatalf("retry finalise: %v", err)
	}
	if len(bundle.Content.Entries) != 3 {
		t.Fatalf("expected the retried claim to carry all 3 entries, got %d", len(bundle.Content.Entries))
	}
}
