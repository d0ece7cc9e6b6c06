//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniccloud/cliniccloud/internal/domain/analytics"
	"github.com/cliniccloud/cliniccloud/internal/domain/billing"
	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
	"github.com/cliniccloud/cliniccloud/migrations"
)

func newTenant(t *testing.T, svc *tenant.Service) *tenant.Tenant {
	t.Helper()
	tn, err := svc.Provision(context.Background(), tenant.CreateInput{Name: "Clinic " + uuid.NewString()[:8]})
	require.NoError(t, err)
	return tn
}

func services() (*tenant.Service, *patient.Service) {
	tenants := tenant.NewService(tenant.NewRepo(pool), tenant.NewUsageCounter(pool), zerolog.Nop())
	patients := patient.NewService(patient.NewRepo(pool), db.NewTxRunner(pool), tenants, zerolog.Nop())
	return tenants, patients
}

func admin(tn *tenant.Tenant) tenancy.Actor {
	return tenancy.Actor{UserID: uuid.New(), TenantID: tn.ID, Role: "admin"}
}

func TestMigrations_AllApplied(t *testing.T) {
	statuses, err := db.NewMigrator(pool, migrations.FS).Status(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d %s", s.Version, s.Name)
	}
}

func TestPatientQueries_AreTenantScoped(t *testing.T) {
	ctx := context.Background()
	tenants, patients := services()
	a, b := newTenant(t, tenants), newTenant(t, tenants)

	for _, name := range []string{"Ada", "Grace"} {
		_, err := patients.Create(ctx, admin(a), patient.Input{FirstName: name, LastName: "A", DateOfBirth: "1980-01-01"})
		require.NoError(t, err)
	}
	pb, err := patients.Create(ctx, admin(b), patient.Input{FirstName: "Linus", LastName: "B", DateOfBirth: "1970-01-01"})
	require.NoError(t, err)

	_, total, err := patients.List(ctx, admin(a), patient.Query{}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = patients.Get(ctx, admin(a), pb.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)

	_, total, err = patient.NewRepo(pool).List(ctx, tenancy.ScopeFilter(tenancy.Actor{UserID: uuid.New()}), patient.Query{}, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "an actor without a tenant sees nothing")
}

func TestTrialPatientLimit_CountsRows(t *testing.T) {
	ctx := context.Background()
	tenants, patients := services()
	tn := newTenant(t, tenants)

	limit := *plan.Limit(tn.Plan, plan.Patients)
	for i := 0; i < limit; i++ {
		_, err := patients.Create(ctx, admin(tn), patient.Input{FirstName: "P", LastName: "Limit", DateOfBirth: "1990-05-05"})
		require.NoError(t, err)
	}
	_, err := patients.Create(ctx, admin(tn), patient.Input{FirstName: "P", LastName: "Over", DateOfBirth: "1990-05-05"})
	assert.ErrorIs(t, err, plan.ErrResourceLimitReached)
}

func TestUpdateLocked_SerializesCustomerLinkage(t *testing.T) {
	ctx := context.Background()
	tenants, _ := services()
	tn := newTenant(t, tenants)
	repo := tenant.NewRepo(pool)

	var (
		wg     sync.WaitGroup
		linked atomic.Int32
	)
	for _, cust := range []string{"cus_first", "cus_second"} {
		wg.Add(1)
		go func(cust string) {
			defer wg.Done()
			_, err := repo.UpdateLocked(ctx, tn.ID, func(t *tenant.Tenant) error {
				if t.PaymentCustomerID == nil {
					c := cust
					t.PaymentCustomerID = &c
					linked.Add(1)
				}
				time.Sleep(200 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}(cust)
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentCustomerID)
	assert.Equal(t, int32(1), linked.Load(), "the second writer must see the first one's customer")
}

func TestLinkSubscription_ClearsTrial(t *testing.T) {
	ctx := context.Background()
	tenants, _ := services()
	tn := newTenant(t, tenants)

	got, err := billing.LinkSubscription(ctx, tenant.NewRepo(pool), tn.ID, "cus_x", "sub_x", plan.Professional)
	require.NoError(t, err)
	assert.Equal(t, plan.Professional, got.Plan)
	assert.Nil(t, got.TrialEndedAt)

	_, err = billing.LinkSubscription(ctx, tenant.NewRepo(pool), uuid.New(), "cus_y", "sub_y", plan.Starter)
	assert.True(t, errors.Is(err, tenancy.ErrNotFound))
}

func TestAnalyticsMeasures_EvaluateAgainstSchema(t *testing.T) {
	ctx := context.Background()
	tenants, patients := services()
	tn := newTenant(t, tenants)
	_, err := patients.Create(ctx, admin(tn), patient.Input{FirstName: "M", LastName: "Measure", DateOfBirth: "2000-02-02"})
	require.NoError(t, err)

	values, err := analytics.NewMeasures(pool).Evaluate(ctx, tn.ID, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	byID := map[string]int64{}
	for _, v := range values {
		byID[v.ID] = v.Value
	}
	assert.Equal(t, int64(1), byID["patients-total"])
	assert.Equal(t, int64(1), byID["patients-new"])
}
