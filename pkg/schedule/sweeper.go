// Package schedule runs recurring maintenance jobs on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// InvitationSweeper deletes expired, unredeemed invitations.
type InvitationSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper periodically removes expired invitations so stale wrapped
// keys do not linger in storage.
type Sweeper struct {
	cron    *cron.Cron
	sweeper InvitationSweeper
	logger  *observability.Logger
	timeout time.Duration
}

// NewSweeper validates the cron expression and registers the sweep job.
// The scheduler does not run until Start is called.
func NewSweeper(sweeper InvitationSweeper, schedule string, logger *observability.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  logger,
		timeout: 30 * time.Second,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("%w: invalid sweep schedule %q: %v", errs.ErrValidation, schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.WithError(err).Error("invitation sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("swept expired invitations")
	}
}

// Start begins running the sweep on its schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
