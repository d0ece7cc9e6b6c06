// Package billing applies payment provider events to tenant subscriptions and
// exposes the checkout surface that produces them.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

var (
	// ErrWebhookNotConfigured is returned before any verification when the
	// signing secret is missing or still a placeholder.
	ErrWebhookNotConfigured = errors.New("billing webhook secret not configured")
	// ErrUnverifiedEvent covers bad signatures, stale timestamps and
	// unparseable payloads. Such events never change state.
	ErrUnverifiedEvent = errors.New("billing event could not be verified")
	// ErrTransitionRefused marks a checkout whose plan change is not allowed.
	ErrTransitionRefused = errors.New("plan transition not allowed")
)

const EventCheckoutCompleted = "checkout.session.completed"

// Outcome describes what Handle did with a verified event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is returned for every verified event.
type Result struct {
	EventID   string
	EventType string
	Outcome   Outcome
	TenantID  uuid.UUID
	Plan      plan.Plan
}

// WebhookSecretValid reports whether secret looks like a real signing
// secret: whsec_ prefix, longer than 20 characters, and no placeholder text.
func WebhookSecretValid(secret string) bool {
	if secret == "" {
		return false
	}
	if strings.Contains(strings.ToLower(secret), "here") {
		return false
	}
	return strings.HasPrefix(secret, "whsec_") && len(secret) > 20
}

// CheckoutSession is the subset of a checkout session the processor reads.
type CheckoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// Checkout is a validated checkout completion.
type Checkout struct {
	TenantID       uuid.UUID
	Plan           plan.Plan
	SubscriptionID string
	CustomerID     string
}

// ParseCheckout extracts a Checkout from session metadata. ok is false for
// sessions that do not name a paid plan and a tenant.
func ParseCheckout(s CheckoutSession) (Checkout, bool) {
	p := plan.Plan(strings.TrimSpace(s.Metadata["plan"]))
	if !plan.IsPaid(p) {
		return Checkout{}, false
	}
	tid, err := uuid.Parse(strings.TrimSpace(s.Metadata["tenant_id"]))
	if err != nil || tid == uuid.Nil {
		return Checkout{}, false
	}
	return Checkout{
		TenantID:       tid,
		Plan:           p,
		SubscriptionID: strings.TrimSpace(s.Subscription),
		CustomerID:     strings.TrimSpace(s.Customer),
	}, true
}

// ApplyCheckout mutates t for a completed checkout. An established customer
// link is never replaced. The trial end is cleared because a paid plan is
// now linked.
func ApplyCheckout(t *tenant.Tenant, c Checkout) error {
	if !plan.CanTransition(t.Plan, c.Plan) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionRefused, t.Plan, c.Plan)
	}
	t.Plan = c.Plan
	if c.SubscriptionID != "" {
		sub := c.SubscriptionID
		t.PaymentSubscriptionID = &sub
	} else {
		t.PaymentSubscriptionID = nil
	}
	if c.CustomerID != "" && (t.PaymentCustomerID == nil || *t.PaymentCustomerID == "") {
		cust := c.CustomerID
		t.PaymentCustomerID = &cust
	}
	t.TrialEndedAt = nil
	return nil
}

// Processor verifies and applies billing events.
type Processor struct {
	tenants   tenant.Repository
	ledger    EventLedger
	secret    string
	tolerance time.Duration
	audit     *audit.Recorder
	logger    zerolog.Logger
}

// NewProcessor builds a Processor. A nil ledger disables replay short-circuit.
func NewProcessor(tenants tenant.Repository, ledger EventLedger, secret string, logger zerolog.Logger) *Processor {
	if ledger == nil {
		ledger = NopLedger{}
	}
	return &Processor{
		tenants:   tenants,
		ledger:    ledger,
		secret:    secret,
		tolerance: webhook.DefaultTolerance,
		logger:    logger.With().Str("component", "billing.processor").Logger(),
	}
}

// SetRecorder enables audit entries for applied plan changes.
func (p *Processor) SetRecorder(rec *audit.Recorder) {
	p.audit = rec
}

// Handle verifies payload against signature and applies it. A returned error
// other than ErrWebhookNotConfigured or ErrUnverifiedEvent is a storage fault
// and the provider should retry.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	if !WebhookSecretValid(p.secret) {
		return Result{}, ErrWebhookNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return Result{}, fmt.Errorf("%w: missing signature", ErrUnverifiedEvent)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnverifiedEvent, err)
	}

	res := Result{EventID: event.ID, EventType: string(event.Type), Outcome: OutcomeIgnored}

	seen, err := p.ledger.Seen(ctx, event.ID)
	if err != nil {
		p.logger.Warn().Err(err).Str("event_id", event.ID).Msg("event ledger unavailable")
	} else if seen {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var session CheckoutSession
		if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil {
			p.logger.Warn().Str("event_id", event.ID).Msg("checkout event without a readable session")
			return res, nil
		}
		if err := p.applyCheckout(ctx, session, &res); err != nil {
			return res, err
		}
	default:
		p.logger.Debug().Str("type", res.EventType).Str("event_id", event.ID).Msg("billing event ignored (unhandled type)")
	}

	if err := p.ledger.Mark(ctx, event.ID); err != nil {
		p.logger.Warn().Err(err).Str("event_id", event.ID).Msg("could not record processed event")
	}
	return res, nil
}

func (p *Processor) applyCheckout(ctx context.Context, session CheckoutSession, res *Result) error {
	c, ok := ParseCheckout(session)
	if !ok {
		p.logger.Warn().
			Str("session_id", session.ID).
			Str("plan", session.Metadata["plan"]).
			Msg("checkout event ignored: unrecognized plan or tenant")
		return nil
	}
	res.TenantID = c.TenantID
	res.Plan = c.Plan

	_, err := p.tenants.UpdateLocked(ctx, c.TenantID, func(t *tenant.Tenant) error {
		return ApplyCheckout(t, c)
	})
	switch {
	case errors.Is(err, tenancy.ErrNotFound):
		p.logger.Warn().Str("tenant_id", c.TenantID.String()).Msg("checkout event for unknown tenant ignored")
		return nil
	case errors.Is(err, ErrTransitionRefused):
		p.logger.Warn().Err(err).Str("tenant_id", c.TenantID.String()).Msg("checkout event ignored")
		return nil
	case err != nil:
		return fmt.Errorf("apply checkout for tenant %s: %w", c.TenantID, err)
	}

	res.Outcome = OutcomeApplied
	p.logger.Info().
		Str("tenant_id", c.TenantID.String()).
		Str("plan", string(c.Plan)).
		Str("subscription_id", c.SubscriptionID).
		Msg("subscription linked")
	p.audit.Record(ctx, tenancy.Actor{TenantID: c.TenantID}, audit.Entry{
		Action:     audit.ActionPlanChanged,
		Resource:   "tenant",
		ResourceID: c.TenantID.String(),
		Details:    fmt.Sprintf("Plan set to %s by checkout session %s.", c.Plan, session.ID),
	})
	return nil
}

// LinkSubscription is the operator path for attaching an existing provider
// subscription to a tenant. Unlike checkout events it replaces the customer.
func LinkSubscription(ctx context.Context, tenants tenant.Repository, tenantID uuid.UUID, customerID, subscriptionID string, p plan.Plan) (*tenant.Tenant, error) {
	if !plan.IsPaid(p) {
		return nil, fmt.Errorf("plan %q is not a paid plan", p)
	}
	return tenants.UpdateLocked(ctx, tenantID, func(t *tenant.Tenant) error {
		cust, sub := customerID, subscriptionID
		t.PaymentCustomerID = &cust
		t.PaymentSubscriptionID = &sub
		t.Plan = p
		t.TrialEndedAt = nil
		return nil
	})
}
