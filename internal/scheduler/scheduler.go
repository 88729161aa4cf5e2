// Package scheduler runs the nightly register pipeline for every tenant
// that has registers configured.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/register"
)

// TenantLister yields the tenant ids that have registers to maintain.
type TenantLister interface {
	GetRegisterTenants() ([]string, error)
}

// Scheduler drives periodic pipeline runs.
type Scheduler struct {
	log      zerolog.Logger
	cron     *cron.Cron
	pipeline *register.Pipeline
	tenants  TenantLister
}

// New creates a scheduler with the given cron spec (standard five-field
// syntax).
func New(log zerolog.Logger, spec string, pipeline *register.Pipeline, tenants TenantLister) (*Scheduler, error) {
	s := &Scheduler{
		log:      log.With().Str("component", "scheduler").Logger(),
		cron:     cron.New(),
		pipeline: pipeline,
		tenants:  tenants,
	}
	if _, err := s.cron.AddFunc(spec, s.runAll); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// runAll executes the pipeline for every register-bearing tenant. A tenant
// whose pipeline is already running is skipped, not queued.
func (s *Scheduler) runAll() {
	tenants, err := s.tenants.GetRegisterTenants()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list tenants")
		return
	}
	for _, masterUserID := range tenants {
		err := s.pipeline.Run(context.Background(), "", register.Options{MasterUserID: masterUserID})
		if err != nil {
			s.log.Error().Err(err).Str("master_user_id", masterUserID).Msg("nightly pipeline run failed")
		}
	}
}
