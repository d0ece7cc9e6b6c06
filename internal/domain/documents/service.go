package documents

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/blobstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Patients interface {
	Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	repo     Repository
	blobs    blobstore.Store
	patients Patients
	logger   zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.Store, patients Patients, logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, patients: patients, logger: logger}
}

// Upload stores content and records its metadata in the actor's tenant. A
// document linked to a patient belongs to the patient's tenant.
func (s *Service) Upload(ctx context.Context, actor tenancy.Actor, in UploadInput, content io.Reader) (*Document, error) {
	d := &Document{ID: uuid.New(), PatientID: in.PatientID}
	if v := in.apply(d); v != nil {
		return nil, v
	}
	d = tenancy.Assign(d, actor)
	if in.PatientID != nil {
		p, err := s.patients.Get(ctx, actor, *in.PatientID)
		if err != nil {
			return nil, err
		}
		if d.TenantID == uuid.Nil {
			d.TenantID = p.TenantID
		}
		if d.TenantID != p.TenantID {
			return nil, tenancy.ErrAccessDenied
		}
	}
	if d.TenantID == uuid.Nil {
		return nil, tenancy.ErrAccessDenied
	}
	if actor.UserID != uuid.Nil {
		uid := actor.UserID
		d.UploadedBy = &uid
	}

	d.BlobKey = blobKey(d.TenantID, d.ID)
	obj, err := s.blobs.Put(ctx, d.BlobKey, content)
	if errors.Is(err, blobstore.ErrFileTooLarge) {
		return nil, apperr.Invalid("file", "Files are limited to 25 MB.")
	}
	if err != nil {
		return nil, err
	}
	d.SizeBytes = obj.Size
	d.SHA256 = obj.SHA256

	if err := s.repo.Create(ctx, d); err != nil {
		if derr := s.blobs.Delete(ctx, d.BlobKey); derr != nil {
			s.logger.Error().Err(derr).Str("blob_key", d.BlobKey).Msg("orphaned blob after failed insert")
		}
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("document").Inc()
	s.logger.Info().
		Str("tenant_id", d.TenantID.String()).
		Str("document_id", d.ID.String()).
		Int64("size_bytes", d.SizeBytes).
		Msg("document uploaded")
	return d, nil
}

func (s *Service) Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Document, error) {
	d, err := s.repo.GetByID(ctx, id)
	return tenancy.Resolve(d, err, actor)
}

func (s *Service) List(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Document, int, error) {
	if q.PatientID != nil {
		if _, err := s.patients.Get(ctx, actor, *q.PatientID); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

// Download returns the document and a reader over its content. The caller
// closes the reader.
func (s *Service) Download(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Document, io.ReadCloser, error) {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, d.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open content of document %s: %w", d.ID, err)
	}
	return d, rc, nil
}

// Delete removes the metadata row and then the content.
func (s *Service) Delete(ctx context.Context, actor tenancy.Actor, id uuid.UUID) error {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, d.ID, d.TenantID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, d.BlobKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("blob_key", d.BlobKey).Msg("failed to delete document content")
	}
	s.logger.Info().
		Str("tenant_id", d.TenantID.String()).
		Str("document_id", d.ID.String()).
		Msg("document deleted")
	return nil
}
