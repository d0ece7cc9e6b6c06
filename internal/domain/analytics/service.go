package analytics

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/reporting"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

const (
	DefaultDays = 30
	MaxDays     = 365
	exportLimit = 10000
)

// Features checks tier-gated capabilities. *tenant.Service satisfies it.
type Features interface {
	RequireFeature(ctx context.Context, tenantID uuid.UUID, f plan.Feature) error
}

type Service struct {
	repo     Repository
	measures Measures
	features Features
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, measures Measures, features Features, logger zerolog.Logger) *Service {
	return &Service{repo: repo, measures: measures, features: features, logger: logger, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Track records an event for the actor's tenant. Failures are logged and
// never reach the caller.
func (s *Service) Track(ctx context.Context, actor tenancy.Actor, eventType, resource string, meta map[string]any) {
	if !actor.HasTenant() {
		return
	}
	if !eventTypes[eventType] {
		eventType = EventOther
	}
	e := &Event{TenantID: actor.TenantID, Type: eventType, Resource: resource, Metadata: meta}
	if actor.UserID != uuid.Nil {
		uid := actor.UserID
		e.UserID = &uid
	}
	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.Warn().Err(err).
			Str("tenant_id", actor.TenantID.String()).
			Str("event_type", eventType).
			Msg("failed to record analytics event")
	}
}

// authorize admits tenant admins of tiers that include analytics.
func (s *Service) authorize(ctx context.Context, actor tenancy.Actor) error {
	if !actor.HasTenant() || !actor.IsAdmin() {
		return tenancy.ErrAccessDenied
	}
	return s.features.RequireFeature(ctx, actor.TenantID, plan.FeatureAnalytics)
}

type Summary struct {
	Since       time.Time         `json:"since"`
	GeneratedAt time.Time         `json:"generated_at"`
	Measures    []reporting.Value `json:"measures"`
	EventCounts map[string]int    `json:"event_counts"`
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

func (s *Service) Summary(ctx context.Context, actor tenancy.Actor, days int) (*Summary, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	since := now.AddDate(0, 0, -clampDays(days))
	values, err := s.measures.Evaluate(ctx, actor.TenantID, since)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByType(ctx, actor.TenantID, since)
	if err != nil {
		return nil, err
	}
	return &Summary{Since: since, GeneratedAt: now, Measures: values, EventCounts: counts}, nil
}

func (s *Service) Events(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Event, int, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

// Export writes a workbook with a summary sheet and the window's events.
func (s *Service) Export(ctx context.Context, actor tenancy.Actor, days int, w io.Writer) error {
	sum, err := s.Summary(ctx, actor, days)
	if err != nil {
		return err
	}
	events, _, err := s.repo.List(ctx, tenancy.ScopeFilter(actor), Query{Since: &sum.Since}, exportLimit, 0)
	if err != nil {
		return err
	}

	summary := reporting.Table{
		Name:    "Summary",
		Headers: []string{"Measure", "Value"},
		Widths:  []float64{36, 14},
	}
	for _, v := range sum.Measures {
		summary.Rows = append(summary.Rows, []any{v.Name, v.Value})
	}
	types := make([]string, 0, len(sum.EventCounts))
	for t := range sum.EventCounts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		summary.Rows = append(summary.Rows, []any{"Events: " + t, sum.EventCounts[t]})
	}

	log := reporting.Table{
		Name:    "Events",
		Headers: []string{"Time", "Event", "Resource", "User"},
		Widths:  []float64{22, 26, 40, 38},
	}
	for _, e := range events {
		user := ""
		if e.UserID != nil {
			user = e.UserID.String()
		}
		log.Rows = append(log.Rows, []any{e.CreatedAt.Format(time.RFC3339), e.Type, e.Resource, user})
	}

	if err := reporting.WriteXLSX(w, summary, log); err != nil {
		return fmt.Errorf("write analytics export: %w", err)
	}
	metrics.AnalyticsExportsTotal.Inc()
	s.Track(ctx, actor, EventReportGenerated, "analytics/export", map[string]any{"days": clampDays(days)})
	s.logger.Info().
		Str("tenant_id", actor.TenantID.String()).
		Int("events", len(events)).
		Msg("analytics export generated")
	return nil
}
