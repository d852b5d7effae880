package app

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ProvChain-Network/provenance_layer/internal/app/services/accounts"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/bundles"
	"github.com/ProvChain-Network/provenance_layer/internal/app/services/entities"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage/memory"
	"github.com/ProvChain-Network/provenance_layer/internal/app/system"
	"github.com/ProvChain-Network/provenance_layer/internal/metrics"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// Options carries the application's external dependencies. A nil Store
// defaults to the in-memory implementation; a nil Uploader disables proof
// anchoring at finalisation time (bundles stay retryable via RetryAnchor).
type Options struct {
	Store    storage.Store
	Uploader bundles.ProofUploader
	NodeKey  *secp256k1.PrivateKey

	// FinaliseSpec schedules periodic bundle finalisation. Empty disables it.
	FinaliseSpec string

	Metrics *metrics.Metrics
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts *accounts.Service
	Entities *entities.Service
	Bundles  *bundles.Service
	Metrics  *metrics.Metrics
}

// New builds a fully initialised application with the provided dependencies.
func New(opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.NodeKey == nil {
		return nil, fmt.Errorf("node signing key is required")
	}

	manager := system.NewManager()

	acctService := accounts.New(opts.Store, log)
	entityService := entities.New(acctService, opts.Store, log)
	bundleService := bundles.New(opts.Store, opts.Uploader, opts.NodeKey, log, opts.Metrics)

	if opts.FinaliseSpec != "" {
		scheduler := bundles.NewScheduler(bundleService, opts.FinaliseSpec, log)
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Accounts: acctService,
		Entities: entityService,
		Bundles:  bundleService,
		Metrics:  opts.Metrics,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
