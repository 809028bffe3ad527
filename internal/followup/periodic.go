package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/logger"
)

const DefaultSchedule = "@every 30m"

// OrganizationLister finds the organizations worth a scheduler pass.
type OrganizationLister interface {
	ListOrganizationsWithSentTasks(ctx context.Context) ([]string, error)
}

// Periodic runs the scheduler for every organization on a cron schedule.
type Periodic struct {
	cron    *cron.Cron
	service *Service
	orgs    OrganizationLister
	spec    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewPeriodic(service *Service, orgs OrganizationLister, spec string, timeout time.Duration, log *zap.Logger) *Periodic {
	if spec == "" {
		spec = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Periodic{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		service: service,
		orgs:    orgs,
		spec:    spec,
		timeout: timeout,
		logger:  logger.WithFields(log, zap.String("schedule", spec)),
	}
}

// Start registers the job and starts the cron loop.
func (p *Periodic) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		p.RunOnce(runCtx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	p.cron.Start()
	p.logger.Info("periodic scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running pass, bounded by ctx.
func (p *Periodic) Stop(ctx context.Context) {
	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		p.logger.Warn("periodic scheduler did not stop in time")
	}
}

// RunOnce runs a scheduler pass for every organization with sent tasks. Errors are logged per organization.
func (p *Periodic) RunOnce(ctx context.Context) {
	orgs, err := p.orgs.ListOrganizationsWithSentTasks(ctx)
	if err != nil {
		p.logger.Error("failed to list organizations", zap.Error(err))
		return
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return
		}

		resp, err := p.service.Run(ctx, Request{OrganizationID: org})
		if err != nil {
			p.logger.Error("scheduler run failed", zap.String(logger.FieldOrganization, org), zap.Error(err))
			continue
		}
		if resp.Throttled {
			p.logger.Debug("scheduler run skipped", zap.String(logger.FieldOrganization, org), zap.String("message", resp.Message))
		}
	}
}
