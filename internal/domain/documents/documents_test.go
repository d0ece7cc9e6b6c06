package documents

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/blobstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type openGate struct{}

func (openGate) Gate(context.Context, uuid.UUID, plan.Resource) error { return nil }

type failingRepo struct {
	*MemoryRepo
}

func (failingRepo) Create(context.Context, *Document) error { return assert.AnError }

type fixture struct {
	svc      *Service
	blobs    *blobstore.MemoryStore
	patients *patient.Service
	acme     tenancy.Actor
	beta     tenancy.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	patients := patient.NewService(patient.NewMemoryRepo(), directTx{}, openGate{}, zerolog.Nop())
	blobs := blobstore.NewMemoryStore()
	return &fixture{
		svc:      NewService(NewMemoryRepo(), blobs, patients, zerolog.Nop()),
		blobs:    blobs,
		patients: patients,
		acme:     tenancy.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: "clinician"},
		beta:     tenancy.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: "clinician"},
	}
}

func (f *fixture) patient(t *testing.T, actor tenancy.Actor) *patient.Patient {
	t.Helper()
	p, err := f.patients.Create(context.Background(), actor, patient.Input{FirstName: "Pat", LastName: "Ient"})
	require.NoError(t, err)
	return p
}

func pdfInput() UploadInput {
	return UploadInput{Title: "Consent", Category: "consent-form", FileName: "consent.pdf", ContentType: "application/pdf"}
}

func TestUpload_StoresContentUnderTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Upload(ctx, f.acme, pdfInput(), strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, f.acme.TenantID, d.TenantID)
	assert.Equal(t, int64(8), d.SizeBytes)
	assert.Len(t, d.SHA256, 64)
	assert.True(t, strings.HasPrefix(d.BlobKey, f.acme.TenantID.String()+"/"))
	assert.Equal(t, f.acme.UserID, *d.UploadedBy)

	got, rc, err := f.svc.Download(ctx, f.acme, d.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, "application/pdf", got.ContentType)
}

func TestUpload_Validation(t *testing.T) {
	f := newFixture(t)
	in := pdfInput()
	in.ContentType = "application/x-msdownload"
	in.Category = "malware"

	_, err := f.svc.Upload(context.Background(), f.acme, in, strings.NewReader("MZ"))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "content_type")
	assert.Contains(t, ve.Fields, "category")
	assert.Equal(t, 0, f.blobs.Len())
}

func TestUpload_DefaultsTitleAndCategory(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.Upload(context.Background(), f.acme,
		UploadInput{FileName: "../../scan.png", ContentType: "image/png; charset=binary"}, strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "scan.png", d.FileName)
	assert.Equal(t, "scan.png", d.Title)
	assert.Equal(t, "other", d.Category)
	assert.Equal(t, "image/png", d.ContentType)
}

func TestUpload_ForeignPatientDenied(t *testing.T) {
	f := newFixture(t)
	foreign := f.patient(t, f.beta)
	in := pdfInput()
	in.PatientID = &foreign.ID

	_, err := f.svc.Upload(context.Background(), f.acme, in, strings.NewReader("x"))
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestUpload_PlatformAdminUsesPatientTenant(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, f.beta)
	admin := tenancy.Actor{UserID: uuid.New(), Role: "admin", PlatformAdmin: true}
	in := pdfInput()
	in.PatientID = &p.ID

	d, err := f.svc.Upload(context.Background(), admin, in, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, f.beta.TenantID, d.TenantID)
}

func TestUpload_RemovesBlobWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	svc := NewService(failingRepo{NewMemoryRepo()}, f.blobs, f.patients, zerolog.Nop())

	_, err := svc.Upload(context.Background(), f.acme, pdfInput(), strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Upload(ctx, f.acme, pdfInput(), strings.NewReader("x"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.beta, d.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	_, _, err = f.svc.Download(ctx, f.beta, d.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.beta, d.ID), tenancy.ErrAccessDenied)

	items, total, err := f.svc.List(ctx, f.beta, Query{}, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
}

func TestDelete_RemovesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Upload(ctx, f.acme, pdfInput(), strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.acme, d.ID))
	assert.Equal(t, 0, f.blobs.Len())
	_, err = f.svc.Get(ctx, f.acme, d.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
}

func TestList_FiltersByPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t, f.acme)
	linked := pdfInput()
	linked.PatientID = &p.ID
	_, err := f.svc.Upload(ctx, f.acme, linked, strings.NewReader("a"))
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, f.acme, pdfInput(), strings.NewReader("b"))
	require.NoError(t, err)

	items, total, err := f.svc.List(ctx, f.acme, Query{PatientID: &p.ID}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, p.ID, *items[0].PatientID)

	foreign := f.patient(t, f.beta)
	_, _, err = f.svc.List(ctx, f.acme, Query{PatientID: &foreign.ID}, 20, 0)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
}

func multipartUpload(t *testing.T, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "X-ray"))
	require.NoError(t, w.WriteField("category", "radiology"))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="chest.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandler_UploadAndDownload(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, zerolog.Nop())
	e := echo.New()

	body, ct := multipartUpload(t, "image/png", "pngdata")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set(echo.HeaderContentType, ct)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.acme))
	rec := httptest.NewRecorder()
	require.NoError(t, h.Upload(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "blob_key")

	items, _, err := f.svc.List(context.Background(), f.acme, Query{}, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+items[0].ID.String()+"/content", nil)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.acme))
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(items[0].ID.String())
	require.NoError(t, h.Download(c))
	assert.Equal(t, "pngdata", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
}

func TestHandler_UploadRejectedType(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, zerolog.Nop())

	body, ct := multipartUpload(t, "application/x-sh", "#!/bin/sh")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set(echo.HeaderContentType, ct)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.acme))
	err := h.Upload(echo.New().NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
}
