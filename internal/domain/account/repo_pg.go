package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const userColumns = `id, tenant_id, username, email, password_hash, first_name, last_name,
	role, is_active, platform_admin, last_login_at, created_at, updated_at`

func nullableTenant(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (
			id, tenant_id, username, email, password_hash, first_name, last_name,
			role, is_active, platform_admin
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		u.ID, nullableTenant(u.TenantID), u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.IsActive, u.PlatformAdmin,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Invalid("username", "A user with that username already exists.")
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE LOWER(username) = LOWER($1)`, username))
}

func (r *userRepoPG) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM app_user WHERE LOWER(username) = LOWER($1))`, username).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*User, int, error) {
	sq := db.NewScopedQuery("app_user", userColumns, "tenant_id", f)
	if q.Active != nil {
		sq.Eq("is_active", *q.Active)
	}
	if q.Role != "" {
		sq.Eq("role", q.Role)
	}
	sq.Contains(q.Search, "username", "email", "first_name", "last_name")
	sq.OrderBy("username ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, sq.CountSQL(), sq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, sq.DataSQL(limit, offset), sq.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users, err := collect(rows)
	return users, total, err
}

func (r *userRepoPG) CountInTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

func (r *userRepoPG) ListActiveAdmins(ctx context.Context, tenantID uuid.UUID) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userColumns+` FROM app_user
		WHERE tenant_id = $1 AND is_active AND role = $2 ORDER BY username`, tenantID, RoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *userRepoPG) Activate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE app_user SET is_active = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func (r *userRepoPG) DeletePending(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM app_user WHERE id = $1 AND NOT is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func (r *userRepoPG) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE app_user SET last_login_at = $2 WHERE id = $1`, id, at)
	return err
}

func collect(rows pgx.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var tenantID *uuid.UUID
	err := row.Scan(
		&u.ID, &tenantID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.IsActive, &u.PlatformAdmin, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenancy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tenantID != nil {
		u.TenantID = *tenantID
	}
	return &u, nil
}
