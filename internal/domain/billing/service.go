package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Offer is a catalog entry as shown on the plans page.
type Offer struct {
	plan.Details
	Purchasable bool `json:"purchasable"`
}

// Service is the tenant-facing checkout surface. Plan changes themselves only
// happen when the provider reports a completed checkout.
type Service struct {
	tenants  tenant.Repository
	provider PaymentProvider
	prices   plan.PriceIDs
	siteURL  string
	logger   zerolog.Logger
}

// NewService builds a Service. provider may be nil when payments are not
// configured; checkout then fails with ErrProviderNotConfigured.
func NewService(tenants tenant.Repository, provider PaymentProvider, prices plan.PriceIDs, siteURL string, logger zerolog.Logger) *Service {
	return &Service{
		tenants:  tenants,
		provider: provider,
		prices:   prices,
		siteURL:  strings.TrimSuffix(siteURL, "/"),
		logger:   logger.With().Str("component", "billing").Logger(),
	}
}

// Plans lists every tier; paid tiers with a configured price are purchasable.
func (s *Service) Plans() []Offer {
	all := plan.All()
	out := make([]Offer, 0, len(all))
	for _, d := range all {
		out = append(out, Offer{
			Details:     d,
			Purchasable: s.provider != nil && plan.IsPaid(d.Plan) && s.prices[d.Plan] != "",
		})
	}
	return out
}

func (s *Service) actorTenant(ctx context.Context, actor tenancy.Actor) (*tenant.Tenant, error) {
	if !actor.HasTenant() {
		return nil, tenancy.ErrAccessDenied
	}
	t, err := s.tenants.GetByID(ctx, actor.TenantID)
	if errors.Is(err, tenancy.ErrNotFound) {
		return nil, tenancy.ErrAccessDenied
	}
	return t, err
}

// StartCheckout returns the hosted checkout URL for moving the actor's tenant
// onto p. The provider customer is created once and linked only if unset.
func (s *Service) StartCheckout(ctx context.Context, actor tenancy.Actor, p plan.Plan) (string, error) {
	if !plan.IsPaid(p) {
		return "", apperr.Invalid("plan", "choose a paid plan")
	}
	priceID := s.prices[p]
	if priceID == "" {
		return "", apperr.Invalid("plan", "plan is not available for purchase")
	}
	if s.provider == nil {
		return "", ErrProviderNotConfigured
	}
	t, err := s.actorTenant(ctx, actor)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, t)
	if err != nil {
		return "", err
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		TenantID:   t.ID,
		CustomerID: customerID,
		Plan:       p,
		PriceID:    priceID,
		SuccessURL: s.siteURL + "/billing/upgrade-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.siteURL + "/billing/plans",
	})
	if err != nil {
		return "", err
	}
	s.logger.Info().
		Str("tenant_id", t.ID.String()).
		Str("plan", string(p)).
		Msg("checkout session created")
	return url, nil
}

func (s *Service) ensureCustomer(ctx context.Context, t *tenant.Tenant) (string, error) {
	if t.PaymentCustomerID != nil && *t.PaymentCustomerID != "" {
		return *t.PaymentCustomerID, nil
	}
	created, err := s.provider.CreateCustomer(ctx, t.ID, t.Name)
	if err != nil {
		return "", err
	}
	linked, err := s.tenants.SetPaymentCustomerIfUnset(ctx, t.ID, created)
	if err != nil {
		return "", fmt.Errorf("link payment customer: %w", err)
	}
	if linked != created {
		s.logger.Warn().
			Str("tenant_id", t.ID.String()).
			Str("orphan_customer", created).
			Msg("tenant already linked to a payment customer")
	}
	return linked, nil
}

// OpenPortal returns the provider's self-service billing portal URL.
func (s *Service) OpenPortal(ctx context.Context, actor tenancy.Actor) (string, error) {
	if s.provider == nil {
		return "", ErrProviderNotConfigured
	}
	t, err := s.actorTenant(ctx, actor)
	if err != nil {
		return "", err
	}
	if t.PaymentCustomerID == nil || *t.PaymentCustomerID == "" {
		return "", apperr.Invalid("customer", "no payment customer is linked to this organization")
	}
	return s.provider.CreatePortalSession(ctx, *t.PaymentCustomerID, s.siteURL+"/billing")
}
