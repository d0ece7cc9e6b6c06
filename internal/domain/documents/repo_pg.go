package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type documentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const documentColumns = `id, tenant_id, patient_id, title, category, file_name, content_type,
	size_bytes, blob_key, sha256, uploaded_by, created_at`

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO document (id, tenant_id, patient_id, title, category, file_name, content_type,
			size_bytes, blob_key, sha256, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		d.ID, d.TenantID, d.PatientID, d.Title, d.Category, d.FileName, d.ContentType,
		d.SizeBytes, d.BlobKey, d.SHA256, d.UploadedBy,
	).Scan(&d.CreatedAt)
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+documentColumns+` FROM document WHERE id = $1`, id))
}

func (r *documentRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Document, int, error) {
	sq := db.NewScopedQuery("document", documentColumns, "tenant_id", f)
	if q.PatientID != nil {
		sq.Eq("patient_id", *q.PatientID)
	}
	if q.Category != "" {
		sq.Eq("category", q.Category)
	}
	sq.Contains(q.Search, "title", "file_name")
	sq.OrderBy("created_at DESC, id")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanDocument)
}

func (r *documentRepoPG) Delete(ctx context.Context, id, tenantID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM document WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.TenantID, &d.PatientID, &d.Title, &d.Category, &d.FileName, &d.ContentType,
		&d.SizeBytes, &d.BlobKey, &d.SHA256, &d.UploadedBy, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenancy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
