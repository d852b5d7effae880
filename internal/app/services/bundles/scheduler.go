package bundles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ProvChain-Network/provenance_layer/pkg/logger"
)

// Scheduler periodically finalises a bundle with a fresh stub identifier.
// It implements system.Service so the application manages its lifecycle.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	spec    string
	log     *logger.Logger
}

// NewScheduler creates a scheduler running FinaliseBundle on the given cron
// spec (e.g. "@every 10m").
func NewScheduler(service *Service, spec string, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("bundle-scheduler")
	}
	return &Scheduler{service: service, cron: cron.New(), spec: spec, log: log}
}

// Name identifies the scheduler to the lifecycle manager.
func (s *Scheduler) Name() string { return "bundle-scheduler" }

// Start registers the finalisation job and starts the cron loop.
func (s *Scheduler) Start(context.Context) error {
	_, err := s.cron.AddFunc(s.spec, s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("bundle finalisation scheduled")
	return nil
}

// Stop stops the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop(context.Context) error {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("bundle finalisation stopped")
	return nil
}

func (s *Scheduler) tick() {
	stubID := uuid.NewString()
	bundle, err := s.service.FinaliseBundle(context.Background(), stubID)
	switch {
	case errors.Is(err, ErrEmptyClaim):
		s.log.WithField("stub_id", stubID).Debug("nothing to bundle")
	case err != nil:
		s.log.WithError(err).WithField("stub_id", stubID).Error("bundle finalisation failed")
	default:
		s.log.WithField("bundle_id", bundle.BundleID).Info("bundle finalised")
	}
}
