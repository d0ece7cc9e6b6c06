package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Recorder writes audit entries on behalf of the other services and the
// HTTP audit middleware. Recording never fails the calling operation.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record stamps e with the actor's tenant and persists it. Entries that end
// up with no tenant, such as platform operator calls outside any tenant, are
// logged only.
func (r *Recorder) Record(ctx context.Context, actor tenancy.Actor, e Entry) {
	if r == nil {
		return
	}
	entry := tenancy.Assign(&e, actor)
	if entry.UserID == nil && actor.UserID != uuid.Nil {
		uid := actor.UserID
		entry.UserID = &uid
	}
	evt := r.logger.Info().
		Str("type", "audit").
		Str("action", entry.Action).
		Str("resource", entry.Resource).
		Str("resource_id", entry.ResourceID).
		Str("request_id", entry.RequestID)
	if entry.TenantID == uuid.Nil {
		evt.Bool("platform", actor.PlatformAdmin).Msg("audit entry without tenant")
		return
	}
	evt.Str("tenant_id", entry.TenantID.String()).Msg("audit")
	if r.repo == nil {
		return
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error().Err(err).
			Str("action", entry.Action).
			Str("tenant_id", entry.TenantID.String()).
			Msg("failed to record audit entry")
	}
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the entries visible to the actor, newest first.
func (s *Service) List(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}
