// Package main runs the provenance gateway: the HTTP front door over the
// content-addressable store, plus the periodic bundle finalisation loop.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/ProvChain-Network/provenance_layer/internal/app"
	"github.com/ProvChain-Network/provenance_layer/internal/app/httpapi"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage/memory"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage/postgres"
	"github.com/ProvChain-Network/provenance_layer/internal/chain"
	"github.com/ProvChain-Network/provenance_layer/internal/config"
	"github.com/ProvChain-Network/provenance_layer/internal/database"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("gateway").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	log := logger.New("gateway", logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	store, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to open storage")
		os.Exit(1)
	}

	nodeKey, err := identity.PrivateKeyFromHex(cfg.NodeSecret)
	if err != nil {
		log.WithError(err).Error("invalid node secret")
		os.Exit(1)
	}

	var uploader *chain.ProofRegistry
	if cfg.LedgerRPCURL != "" {
		client, err := chain.NewClient(chain.Config{RPCURL: cfg.LedgerRPCURL, Timeout: cfg.LedgerTimeout})
		if err != nil {
			log.WithError(err).Error("failed to configure ledger client")
			os.Exit(1)
		}
		uploader = chain.NewProofRegistry(client, log)
	} else {
		log.Warn("PROV_LEDGER_RPC_URL not set; bundles will not be anchored")
	}

	opts := app.Options{
		Store:        store,
		NodeKey:      nodeKey,
		FinaliseSpec: cfg.FinaliseSpec,
	}
	if uploader != nil {
		opts.Uploader = uploader
	}

	application, err := app.New(opts, log)
	if err != nil {
		log.WithError(err).Error("failed to build application")
		os.Exit(1)
	}

	handler, err := httpapi.NewHandler(application, httpapi.Options{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		AuditFile: cfg.AuditFile,
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to build HTTP handler")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start application")
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("gateway listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("gateway stopped")
}

func openStore(cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := database.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		log.Info("postgres storage ready")
		return postgres.New(db), nil
	default:
		log.Warn("using in-memory storage; data will not survive restarts")
		return memory.New(), nil
	}
}
