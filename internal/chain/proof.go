package chain

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// ProofRegistry anchors bundle identifiers on the ledger. UploadProof is
// idempotent: a bundle already anchored returns its existing block without
// resubmission.
type ProofRegistry struct {
	client       *Client
	log          *logger.Logger
	pollInterval time.Duration
	pollAttempts int
}

// NewProofRegistry creates a registry over the ledger client.
func NewProofRegistry(client *Client, log *logger.Logger) *ProofRegistry {
	if log == nil {
		log = logger.NewDefault("proof-registry")
	}
	return &ProofRegistry{
		client:       client,
		log:          log,
		pollInterval: 2 * time.Second,
		pollAttempts: 30,
	}
}

// UploadProof anchors bundleID and returns the block number it landed in.
// Ledger connectivity failures surface as unavailable so the caller can
// retry the whole operation.
func (r *ProofRegistry) UploadProof(ctx context.Context, bundleID string) (int64, error) {
	existing, err := r.client.GetProof(ctx, bundleID)
	if err != nil {
		return 0, apperrors.Unavailable("get proof", err)
	}
	if existing != nil && existing.BlockNumber > 0 {
		r.log.WithField("bundle_id", bundleID).WithField("block", existing.BlockNumber).
			Info("bundle already anchored")
		return existing.BlockNumber, nil
	}

	txHash, err := r.client.SubmitProof(ctx, bundleID)
	if err != nil {
		return 0, apperrors.Unavailable("submit proof", err)
	}
	r.log.WithField("bundle_id", bundleID).WithField("tx", txHash).Info("proof submitted")

	return r.waitForProof(ctx, bundleID)
}

func (r *ProofRegistry) waitForProof(ctx context.Context, bundleID string) (int64, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < r.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return 0, apperrors.Unavailable("await proof", ctx.Err())
		case <-ticker.C:
		}

		proof, err := r.client.GetProof(ctx, bundleID)
		if err != nil {
			return 0, apperrors.Unavailable("await proof", err)
		}
		if proof != nil && proof.BlockNumber > 0 {
			return proof.BlockNumber, nil
		}
	}

	return 0, apperrors.Unavailable("await proof",
		fmt.Errorf("proof for %s not confirmed after %d attempts", bundleID, r.pollAttempts))
}
