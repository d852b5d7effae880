package bundles

import (
	"context"
	"errors"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	"github.com/ProvChain-Network/provenance_layer/internal/metrics"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// Stage names the steps of the finalisation pipeline. The pipeline is not
// atomic across stages; the stage reached defines the recovery contract.
type Stage string

const (
	StageUnbundled     Stage = "unbundled"
	StageClaimed       Stage = "claimed"
	StageAssembled     Stage = "assembled"
	StageStored        Stage = "stored"
	StageProofAnchored Stage = "proof_anchored"
)

// ErrEmptyClaim reports a finalisation attempt that claimed no entries.
// Callers skip the remaining pipeline; no empty bundle is ever stored.
var ErrEmptyClaim = errors.New("nothing to bundle")

// ProofUploader anchors a bundle identifier to the ledger and returns the
// block it landed in. Re-submitting the same bundle identifier must be
// idempotent.
type ProofUploader interface {
	UploadProof(ctx context.Context, bundleID string) (int64, error)
}

// Service drives the bundle lifecycle: claim, assemble, store, resolve,
// anchor.
type Service struct {
	store    storage.EntityStore
	uploader ProofUploader
	nodeKey  *secp256k1.PrivateKey
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New constructs a bundle service signing with nodeKey.
func New(store storage.EntityStore, uploader ProofUploader, nodeKey *secp256k1.PrivateKey, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.NewDefault("bundles")
	}
	return &Service{
		store:    store,
		uploader: uploader,
		nodeKey:  nodeKey,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// FinaliseBundle runs the full pipeline under stubID:
//
//  1. claim the unbundled entries (exclusive, retryable per stub)
//  2. assemble and sign the bundle
//  3. persist the bundle
//  4. resolve the claim, linking stub to bundle
//  5. anchor the bundle on the ledger
//  6. record the anchor block
//
// A failure after step 3 leaves a valid, retrievable bundle lacking only an
// anchor; re-running anchoring with the same bundle identifier is safe.
func (s *Service) FinaliseBundle(ctx context.Context, stubID string) (entity.Bundle, error) {
	started := s.now()
	log := s.log.WithField("stub_id", stubID)

	claim, err := s.store.BeginBundle(ctx, stubID)
	if err != nil {
		return entity.Bundle{}, err
	}
	if claim.Empty() {
		if s.metrics != nil {
			s.metrics.EmptyClaim()
		}
		return entity.Bundle{}, ErrEmptyClaim
	}
	log.WithField("stage", StageClaimed).
		WithField("assets", len(claim.Assets)).
		WithField("events", len(claim.Events)).
		Info("entries claimed")

	bundle, err := AssembleBundle(claim.Assets, claim.Events, s.now().Unix(), s.nodeKey)
	if err != nil {
		return entity.Bundle{}, err
	}
	log = log.WithField("bundle_id", bundle.BundleID)
	log.WithField("stage", StageAssembled).Info("bundle assembled")

	if err := s.store.StoreBundle(ctx, bundle); err != nil {
		return entity.Bundle{}, err
	}
	if err := s.store.EndBundle(ctx, stubID, bundle.BundleID); err != nil {
		return entity.Bundle{}, err
	}
	if s.metrics != nil {
		s.metrics.BundleFinalised()
	}
	log.WithField("stage", StageStored).Info("bundle stored, claim resolved")

	if s.uploader == nil {
		log.Warn("no ledger configured; bundle stored without anchor")
		return bundle, nil
	}

	blockNumber, err := s.uploader.UploadProof(ctx, bundle.BundleID)
	if err != nil {
		// The bundle is stored and the claim resolved; only the anchor is
		// missing. Surface the error so a supervisor can retry anchoring.
		log.WithError(err).Warn("proof upload failed; bundle stored without anchor")
		return bundle, err
	}
	if err := s.store.StoreBundleProofBlock(ctx, bundle.BundleID, blockNumber); err != nil {
		return bundle, err
	}
	if s.metrics != nil {
		s.metrics.BundleAnchored()
		s.metrics.ObserveFinalise(s.now().Sub(started))
	}
	log.WithField("stage", StageProofAnchored).WithField("block", blockNumber).Info("bundle anchored")

	return bundle, nil
}

// RetryAnchor re-submits an already-stored bundle for ledger anchoring and
// records the resulting block. Safe to call for bundles that already carry
// an anchor thanks to the uploader's idempotence.
func (s *Service) RetryAnchor(ctx context.Context, bundleID string) (int64, error) {
	if s.uploader == nil {
		return 0, errors.New("no ledger configured")
	}
	if _, err := s.store.GetBundle(ctx, bundleID); err != nil {
		return 0, err
	}
	blockNumber, err := s.uploader.UploadProof(ctx, bundleID)
	if err != nil {
		return 0, err
	}
	if err := s.store.StoreBundleProofBlock(ctx, bundleID, blockNumber); err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.BundleAnchored()
	}
	s.log.WithField("bundle_id", bundleID).WithField("block", blockNumber).Info("bundle anchor recorded")
	return blockNumber, nil
}

// GetBundle fetches a bundle by identifier.
func (s *Service) GetBundle(ctx context.Context, id string) (entity.Bundle, error) {
	return s.store.GetBundle(ctx, id)
}
