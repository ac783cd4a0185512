package refresh

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "campusmap/internal/log"
)

// cronParser accepts standard 5-field expressions, an optional seconds
// field and descriptors like "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler runs a Refresher on a cron schedule. Overlapping runs are
// skipped rather than queued.
type Scheduler struct {
	cron *cron.Cron
	spec string
}

// NewScheduler validates spec and binds r to it. Runs use ctx, so
// cancelling it aborts an in-flight refresh.
func NewScheduler(ctx context.Context, spec string, r *Refresher) (*Scheduler, error) {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err, "schedule", spec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, spec: spec}, nil
}

func (s *Scheduler) Start() {
	appLog.Info("refresh scheduler started", "schedule", s.spec)
	s.cron.Start()
}

// Stop halts the ticker and waits for a running refresh to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
