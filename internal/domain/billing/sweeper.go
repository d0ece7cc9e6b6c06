package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/notification"
)

// Recipient is an active admin who receives trial reminders.
type Recipient struct {
	Username string
	Email    string
}

// AdminDirectory lists the active admins of a tenant.
type AdminDirectory interface {
	ActiveAdmins(ctx context.Context, tenantID uuid.UUID) ([]Recipient, error)
}

// Reminder windows, in days remaining.
const (
	WeeklyReminderWindow = 21
	DailyReminderWindow  = 7
)

// Sweeper runs the periodic subscription jobs. Reads are unlocked; a tenant
// upgrading mid-sweep may get one extra reminder.
type Sweeper struct {
	tenants tenant.Repository
	admins  AdminDirectory
	notify  *notification.Manager
	siteURL string
	logger  zerolog.Logger
	now     func() time.Time
}

func NewSweeper(tenants tenant.Repository, admins AdminDirectory, notify *notification.Manager, siteURL string, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		tenants: tenants,
		admins:  admins,
		notify:  notify,
		siteURL: siteURL,
		logger:  logger.With().Str("component", "billing.sweeper").Logger(),
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// WeeklyTrialReminders notifies tenants in trial with at most 21 days left.
func (s *Sweeper) WeeklyTrialReminders(ctx context.Context) (int, error) {
	return s.remind(ctx, "weekly", notification.TplTrialExpiryWeekly, func(days int) bool {
		return days <= WeeklyReminderWindow
	})
}

// DailyTrialReminders notifies tenants in trial with one to seven days left.
func (s *Sweeper) DailyTrialReminders(ctx context.Context) (int, error) {
	return s.remind(ctx, "daily", notification.TplTrialExpiryDaily, func(days int) bool {
		return days > 0 && days <= DailyReminderWindow
	})
}

func (s *Sweeper) remind(ctx context.Context, sweep, tpl string, due func(days int) bool) (int, error) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	notified := 0
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return notified, err
		}
		if !plan.IsInFreeTrial(t, now) {
			continue
		}
		days := plan.TrialDaysRemaining(t, now)
		if !due(days) {
			continue
		}
		admins, err := s.admins.ActiveAdmins(ctx, t.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant_id", t.ID.String()).Msg("list tenant admins")
			metrics.TrialRemindersTotal.WithLabelValues(sweep, "error").Inc()
			continue
		}
		sent := 0
		for _, a := range admins {
			err := s.notify.SendFromTemplate(ctx, tpl, map[string]string{
				"username":    a.Username,
				"tenant_name": t.Name,
				"days_left":   strconv.Itoa(days),
				"upgrade_url": s.siteURL + "/billing/plans",
			}, a.Email)
			if err != nil {
				metrics.TrialRemindersTotal.WithLabelValues(sweep, "failed").Inc()
				continue
			}
			sent++
			metrics.TrialRemindersTotal.WithLabelValues(sweep, "sent").Inc()
		}
		if sent > 0 {
			notified++
			s.logger.Info().
				Str("tenant_id", t.ID.String()).
				Int("days_left", days).
				Str("sweep", sweep).
				Msg("trial expiry reminder sent")
		}
	}
	s.logger.Info().Str("sweep", sweep).Int("notified", notified).Msg("trial reminders processed")
	return notified, nil
}

// PlanMix counts tenants per plan and publishes the tenants_by_plan gauge.
func (s *Sweeper) PlanMix(ctx context.Context) (map[plan.Plan]int, error) {
	counts, err := s.tenants.CountByPlan(ctx)
	if err != nil {
		return nil, err
	}
	ev := s.logger.Info().Time("timestamp", s.now().UTC())
	for _, d := range plan.All() {
		n := counts[d.Plan]
		metrics.TenantsByPlan.WithLabelValues(string(d.Plan)).Set(float64(n))
		ev = ev.Int(string(d.Plan), n)
	}
	ev.Msg("subscription mix")
	return counts, nil
}

// Run fires the daily reminder and plan-mix jobs every interval, and the
// weekly reminder on top of them every seventh run, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runs := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runs++
			s.tick(ctx, runs)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, run int) {
	if run%7 == 0 {
		if _, err := s.WeeklyTrialReminders(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("weekly trial reminders")
		}
	}
	if _, err := s.DailyTrialReminders(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("daily trial reminders")
	}
	if _, err := s.PlanMix(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("plan mix")
	}
}
