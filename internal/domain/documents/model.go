package documents

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/blobstore"
)

var categories = map[string]bool{
	"clinical-image":  true,
	"lab-report":      true,
	"consent-form":    true,
	"radiology":       true,
	"referral-letter": true,
	"invoice":         true,
	"other":           true,
}

// Document is the metadata of an uploaded file. The content lives in the
// blob store under BlobKey.
type Document struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	BlobKey     string     `json:"-"`
	SHA256      string     `json:"sha256"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (d *Document) OwnerTenant() uuid.UUID      { return d.TenantID }
func (d *Document) SetOwnerTenant(id uuid.UUID) { d.TenantID = id }

// blobKey places content under the owning tenant.
func blobKey(tenantID, id uuid.UUID) string {
	return tenantID.String() + "/" + id.String()
}

type UploadInput struct {
	PatientID   *uuid.UUID
	Title       string
	Category    string
	FileName    string
	ContentType string
}

func (in UploadInput) apply(d *Document) *apperr.ValidationError {
	v := apperr.NewValidation()
	name := filepath.Base(strings.TrimSpace(in.FileName))
	if name == "" || name == "." || name == "/" {
		v.Add("file", "A file is required.")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = name
	}
	if len(title) > 200 {
		v.Add("title", "Titles are limited to 200 characters.")
	}
	category := in.Category
	if category == "" {
		category = "other"
	}
	if !categories[category] {
		v.Add("category", "Unknown document category.")
	}
	ct, err := blobstore.CheckContentType(in.ContentType)
	if err != nil {
		v.Add("content_type", "This file type is not accepted.")
	}
	if !v.Empty() {
		return v
	}
	d.Title = title
	d.Category = category
	d.FileName = name
	d.ContentType = ct
	return nil
}

type Query struct {
	PatientID *uuid.UUID
	Category  string
	Search    string
}
