package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
)

const testSecret = "whsec_test_0123456789abcdef"

func sign(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func checkoutEvent(t *testing.T, eventID string, meta map[string]string, customer, subscription string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":     eventID,
		"object": "event",
		"type":   EventCheckoutCompleted,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           "cs_test_" + eventID,
				"object":       "checkout.session",
				"customer":     customer,
				"subscription": subscription,
				"metadata":     meta,
			},
		},
	})
	require.NoError(t, err)
	return body
}

func trialTenant(repo *tenant.MemoryRepo) *tenant.Tenant {
	t := &tenant.Tenant{ID: uuid.New(), Name: "Riverside Clinic", Subdomain: "riverside-clinic", IsActive: true}
	t.StartTrial(time.Now())
	repo.Put(t)
	return t
}

func newProcessor(repo tenant.Repository, ledger EventLedger) *Processor {
	return NewProcessor(repo, ledger, testSecret, zerolog.Nop())
}

func TestWebhookSecretValid(t *testing.T) {
	tests := []struct {
		secret string
		want   bool
	}{
		{"", false},
		{"whsec_short", false},
		{"whsec_your_secret_here_123456", false},
		{"sk_test_0123456789abcdefghijkl", false},
		{testSecret, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WebhookSecretValid(tt.secret), tt.secret)
	}
}

func TestHandle_NotConfigured(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	p := NewProcessor(repo, nil, "whsec_replace_me_here_please", zerolog.Nop())
	_, err := p.Handle(context.Background(), []byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}

func TestHandle_BadSignatureChangesNothing(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	payload := checkoutEvent(t, "evt_bad", map[string]string{"plan": "professional", "tenant_id": tn.ID.String()}, "cus_1", "sub_1")

	p := newProcessor(repo, nil)
	_, err := p.Handle(context.Background(), payload, sign(t, "whsec_some_other_secret_value", payload))
	require.ErrorIs(t, err, ErrUnverifiedEvent)

	_, err = p.Handle(context.Background(), payload, "")
	require.ErrorIs(t, err, ErrUnverifiedEvent)

	header := sign(t, testSecret, payload)
	tampered := bytes.Replace(payload, []byte(`"professional"`), []byte(`"enterprise"`), 1)
	require.NotEqual(t, payload, tampered)
	_, err = p.Handle(context.Background(), tampered, header)
	require.ErrorIs(t, err, ErrUnverifiedEvent)

	got, _ := repo.GetByID(context.Background(), tn.ID)
	assert.Equal(t, plan.FreeTrial, got.Plan)
	assert.NotNil(t, got.TrialEndedAt)
	assert.Nil(t, got.PaymentCustomerID)
	assert.Nil(t, got.PaymentSubscriptionID)
}

func TestHandle_CheckoutAppliesPlan(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	payload := checkoutEvent(t, "evt_1", map[string]string{"plan": "professional", "tenant_id": tn.ID.String()}, "cus_1", "sub_1")

	res, err := newProcessor(repo, nil).Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, tn.ID, res.TenantID)

	got, err := repo.GetByID(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Professional, got.Plan)
	require.NotNil(t, got.PaymentSubscriptionID)
	assert.Equal(t, "sub_1", *got.PaymentSubscriptionID)
	require.NotNil(t, got.PaymentCustomerID)
	assert.Equal(t, "cus_1", *got.PaymentCustomerID)
	assert.Nil(t, got.TrialEndedAt)
}

func TestHandle_CustomerNeverOverwritten(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	_, err := repo.SetPaymentCustomerIfUnset(context.Background(), tn.ID, "cus_original")
	require.NoError(t, err)

	payload := checkoutEvent(t, "evt_2", map[string]string{"plan": "starter", "tenant_id": tn.ID.String()}, "cus_other", "sub_2")
	_, err = newProcessor(repo, nil).Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)

	got, _ := repo.GetByID(context.Background(), tn.ID)
	assert.Equal(t, plan.Starter, got.Plan)
	assert.Equal(t, "cus_original", *got.PaymentCustomerID)
	assert.Equal(t, "sub_2", *got.PaymentSubscriptionID)
}

func TestHandle_ReplayIsIdempotent(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	payload := checkoutEvent(t, "evt_3", map[string]string{"plan": "enterprise", "tenant_id": tn.ID.String()}, "cus_3", "sub_3")
	p := newProcessor(repo, nil)

	_, err := p.Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	first, _ := repo.GetByID(context.Background(), tn.ID)

	res, err := p.Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	second, _ := repo.GetByID(context.Background(), tn.ID)

	assert.Equal(t, first.Plan, second.Plan)
	assert.Equal(t, *first.PaymentSubscriptionID, *second.PaymentSubscriptionID)
	assert.Equal(t, *first.PaymentCustomerID, *second.PaymentCustomerID)
	assert.Nil(t, second.TrialEndedAt)
}

func TestHandle_RedisLedgerShortCircuitsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	payload := checkoutEvent(t, "evt_4", map[string]string{"plan": "starter", "tenant_id": tn.ID.String()}, "cus_4", "sub_4")
	p := newProcessor(repo, NewRedisLedger(rdb, time.Hour))

	res, err := p.Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, mr.Exists(ledgerKeyPrefix+"evt_4"))

	res, err = p.Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
}

func TestHandle_LedgerOutageDoesNotBlock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	payload := checkoutEvent(t, "evt_5", map[string]string{"plan": "starter", "tenant_id": tn.ID.String()}, "cus_5", "sub_5")

	res, err := newProcessor(repo, NewRedisLedger(rdb, time.Hour)).Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestHandle_IgnoredCheckouts(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	p := newProcessor(repo, nil)

	cases := map[string]map[string]string{
		"unknown plan":       {"plan": "gold", "tenant_id": tn.ID.String()},
		"free trial":         {"plan": "free_trial", "tenant_id": tn.ID.String()},
		"missing tenant id":  {"plan": "starter"},
		"malformed tenant":   {"plan": "starter", "tenant_id": "42"},
		"nonexistent tenant": {"plan": "starter", "tenant_id": uuid.NewString()},
	}
	i := 0
	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			i++
			payload := checkoutEvent(t, fmt.Sprintf("evt_ign_%d", i), meta, "cus_x", "sub_x")
			res, err := p.Handle(context.Background(), payload, sign(t, testSecret, payload))
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, res.Outcome)
		})
	}

	got, _ := repo.GetByID(context.Background(), tn.ID)
	assert.Equal(t, plan.FreeTrial, got.Plan)
	assert.Nil(t, got.PaymentCustomerID)
	assert.NotNil(t, got.TrialEndedAt)
}

func TestHandle_UnknownEventTypeAcknowledged(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	payload := []byte(`{"id":"evt_inv","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	res, err := newProcessor(repo, nil).Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, "invoice.paid", res.EventType)
}

type failingRepo struct {
	*tenant.MemoryRepo
}

func (failingRepo) UpdateLocked(context.Context, uuid.UUID, func(*tenant.Tenant) error) (*tenant.Tenant, error) {
	return nil, errors.New("connection reset")
}

func TestHandle_StorageFailureIsReturned(t *testing.T) {
	mem := tenant.NewMemoryRepo()
	tn := trialTenant(mem)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	payload := checkoutEvent(t, "evt_6", map[string]string{"plan": "starter", "tenant_id": tn.ID.String()}, "cus_6", "sub_6")
	_, err := newProcessor(failingRepo{mem}, NewRedisLedger(rdb, time.Hour)).Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnverifiedEvent)
	assert.False(t, mr.Exists(ledgerKeyPrefix+"evt_6"), "failed events must stay retryable")
}

func TestHandle_ConcurrentDeliveriesDoNotInterleave(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	p := newProcessor(repo, nil)

	pairs := map[plan.Plan]string{
		plan.Starter:      "sub_starter",
		plan.Professional: "sub_professional",
		plan.Enterprise:   "sub_enterprise",
	}
	var wg sync.WaitGroup
	for round := 0; round < 20; round++ {
		for pl, sub := range pairs {
			wg.Add(1)
			payload := checkoutEvent(t, fmt.Sprintf("evt_%s_%d", pl, round),
				map[string]string{"plan": string(pl), "tenant_id": tn.ID.String()}, "cus_"+string(pl), sub)
			header := sign(t, testSecret, payload)
			go func() {
				defer wg.Done()
				_, err := p.Handle(context.Background(), payload, header)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	got, err := repo.GetByID(context.Background(), tn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentSubscriptionID)
	assert.Equal(t, pairs[got.Plan], *got.PaymentSubscriptionID, "plan and subscription must come from the same event")
	require.NotNil(t, got.PaymentCustomerID)
	assert.Nil(t, got.TrialEndedAt)
}

func TestLinkSubscription(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	_, err := repo.SetPaymentCustomerIfUnset(context.Background(), tn.ID, "cus_old")
	require.NoError(t, err)

	got, err := LinkSubscription(context.Background(), repo, tn.ID, "cus_new", "sub_new", plan.Professional)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", *got.PaymentCustomerID)
	assert.Equal(t, plan.Professional, got.Plan)
	assert.Nil(t, got.TrialEndedAt)

	_, err = LinkSubscription(context.Background(), repo, tn.ID, "c", "s", plan.FreeTrial)
	assert.Error(t, err)
}

func TestHandle_AppliedPlanChangeIsAudited(t *testing.T) {
	repo := tenant.NewMemoryRepo()
	tn := trialTenant(repo)
	audits := audit.NewMemoryRepo()
	p := newProcessor(repo, nil)
	p.SetRecorder(audit.NewRecorder(audits, zerolog.Nop()))

	payload := checkoutEvent(t, "evt_audit", map[string]string{"plan": "professional", "tenant_id": tn.ID.String()}, "cus_a", "sub_a")
	_, err := p.Handle(context.Background(), payload, sign(t, testSecret, payload))
	require.NoError(t, err)

	entries := audits.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, tn.ID, entries[0].TenantID)
	assert.Equal(t, audit.ActionPlanChanged, entries[0].Action)
	assert.Nil(t, entries[0].UserID)
}
