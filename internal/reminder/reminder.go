// Package reminder runs the daily mission sweep.
//
// On a cron schedule it scans every in-progress enrollment, resolves which
// missions are due today, and publishes MissionsDue events on the bus.
// Delivery of the resulting notifications is an external concern; this
// package only decides who has something due.
package reminder

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/salasoft/battleplan/internal/events"
	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
)

// DefaultCronSpec fires the sweep every morning at 08:00.
const DefaultCronSpec = "0 8 * * *"

// defaultSweepParallelism bounds concurrent per-enrollment resolution.
const defaultSweepParallelism = 8

// Opts holds configuration for the reminder service.
type Opts struct {
	CronSpec    string
	Parallelism int
}

// Option configures Opts.
type Option func(*Opts)

// WithCronSpec overrides the sweep schedule.
func WithCronSpec(spec string) Option {
	return func(o *Opts) { o.CronSpec = spec }
}

// WithParallelism bounds how many enrollments are resolved concurrently.
func WithParallelism(n int) Option {
	return func(o *Opts) { o.Parallelism = n }
}

// Service schedules and runs the daily sweep.
type Service struct {
	store       store.Store
	clock       schedule.Clock
	bus         *events.Bus
	cron        *cron.Cron
	cronSpec    string
	parallelism int
}

// NewService creates a reminder service. Start must be called to begin
// sweeping.
func NewService(s store.Store, clock schedule.Clock, bus *events.Bus, opts ...Option) *Service {
	cfg := Opts{CronSpec: DefaultCronSpec, Parallelism: defaultSweepParallelism}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic
	// recovery so one bad sweep cannot kill the scheduler.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Service{
		store:       s,
		clock:       clock,
		bus:         bus,
		cron:        c,
		cronSpec:    cfg.CronSpec,
		parallelism: cfg.Parallelism,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cronSpec, func() {
		if err := s.Sweep(ctx); err != nil {
			slog.Error("Reminder.Start: sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("Reminder.Start: daily sweep scheduled", "cron_spec", s.cronSpec)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep resolves today's missions for every in-progress enrollment and
// publishes one MissionsDue event per enrollment with work due. Enrollments
// whose plan fails to load are logged and skipped; one bad record does not
// abort the sweep.
func (s *Service) Sweep(ctx context.Context) error {
	enrollments, err := s.store.ListEnrollmentsByStatus(ctx, models.EnrollmentStatusInProgress)
	if err != nil {
		return models.Transientf(err, "failed to list in-progress enrollments")
	}
	now := s.clock.Now().UTC()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, e := range enrollments {
		e := e
		g.Go(func() error {
			plan, err := s.store.GetPlan(ctx, e.PlanID)
			if err != nil {
				slog.Warn("Reminder.Sweep: plan lookup failed",
					"user_id", e.UserID, "plan_id", e.PlanID, "error", err)
				return nil
			}
			due := schedule.ResolveTodayMissions(plan, &e, now)
			if len(due) == 0 {
				return nil
			}
			s.bus.Publish(events.Event{
				Topic:      events.TopicMissionsDue,
				UserID:     e.UserID,
				PlanID:     e.PlanID,
				OccurredAt: now,
				Missions:   due,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Reminder.Sweep: sweep finished", "enrollments", len(enrollments))
	return nil
}
