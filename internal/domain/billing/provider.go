package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
)

// ErrProviderNotConfigured is returned when no usable API key is set.
var ErrProviderNotConfigured = errors.New("payment provider not configured")

// CheckoutRequest asks the provider for a hosted subscription checkout.
type CheckoutRequest struct {
	TenantID   uuid.UUID
	CustomerID string
	Plan       plan.Plan
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// PaymentProvider is the outbound side of billing.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, tenantID uuid.UUID, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// SecretKeyValid rejects empty keys, placeholders and anything that is not a
// test or live secret key.
func SecretKeyValid(key string) bool {
	if key == "" || strings.Contains(strings.ToLower(key), "here") {
		return false
	}
	if !strings.HasPrefix(key, "sk_test_") && !strings.HasPrefix(key, "sk_live_") {
		return false
	}
	return len(key) > 20
}

// StripeProvider implements PaymentProvider with the Stripe API.
type StripeProvider struct {
	newCustomer func(params *stripe.CustomerParams) (*stripe.Customer, error)
	newCheckout func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newPortal   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// NewStripeProvider sets the process-wide Stripe key.
func NewStripeProvider(secretKey string) (*StripeProvider, error) {
	if !SecretKeyValid(secretKey) {
		return nil, ErrProviderNotConfigured
	}
	stripe.Key = strings.TrimSpace(secretKey)
	return &StripeProvider{
		newCustomer: customer.New,
		newCheckout: checkoutsession.New,
		newPortal:   portalsession.New,
	}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, tenantID uuid.UUID, name string) (string, error) {
	params := &stripe.CustomerParams{Name: stripe.String(name)}
	params.Context = ctx
	params.AddMetadata("tenant_id", tenantID.String())
	c, err := p.newCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(req.CustomerID),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"plan":      string(req.Plan),
			"tenant_id": req.TenantID.String(),
		},
	}
	params.Context = ctx
	s, err := p.newCheckout(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if strings.TrimSpace(s.URL) == "" {
		return "", errors.New("create checkout session: provider returned no url")
	}
	return s.URL, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := p.newPortal(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return s.URL, nil
}
