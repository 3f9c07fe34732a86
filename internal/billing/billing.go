// Package billing creates Stripe checkout and customer portal sessions for
// Billit subscriptions.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
)

// ErrNoCustomer is returned when the user never started a subscription.
var ErrNoCustomer = errors.New("no billing customer for user")

// CheckoutSessions creates Stripe checkout sessions.
type CheckoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// PortalSessions creates Stripe billing portal sessions.
type PortalSessions interface {
	New(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// Customers creates Stripe customers.
type Customers interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

// Profiles reads and updates the user's billing identity.
type Profiles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error
}

// Service opens Stripe sessions for users.
type Service struct {
	checkout  CheckoutSessions
	portal    PortalSessions
	customers Customers
	profiles  Profiles
	priceID   string
	appURL    string
}

// NewService creates a Service backed by the Stripe API.
func NewService(secretKey, priceID, appURL string, profiles Profiles) *Service {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return NewServiceWithClients(sc.CheckoutSessions, sc.BillingPortalSessions, sc.Customers, profiles, priceID, appURL)
}

// NewServiceWithClients creates a Service over explicit Stripe clients.
func NewServiceWithClients(
	checkout CheckoutSessions,
	portal PortalSessions,
	customers Customers,
	profiles Profiles,
	priceID, appURL string,
) *Service {
	return &Service{
		checkout:  checkout,
		portal:    portal,
		customers: customers,
		profiles:  profiles,
		priceID:   priceID,
		appURL:    appURL,
	}
}

// Checkout returns the URL of a subscription checkout session. A Stripe
// customer is created and remembered on first use.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, profile)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID.String()),
		SuccessURL:        stripe.String(s.appURL + "/billing?status=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.appURL + "/billing?status=cancelled"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.priceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx

	session, err := s.checkout.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	logger.Log.Info().Str("user", logger.HashUserID(userID)).Msg("Checkout session created")
	return session.URL, nil
}

// Portal returns the URL of the customer's billing portal.
func (s *Service) Portal(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(profile.StripeCustomerID),
		ReturnURL: stripe.String(s.appURL + "/billing"),
	}
	params.Context = ctx

	session, err := s.portal.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}

func (s *Service) ensureCustomer(ctx context.Context, profile *models.Profile) (string, error) {
	if profile.StripeCustomerID != "" {
		return profile.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{}
	if profile.Email != "" {
		params.Email = stripe.String(profile.Email)
	}
	if profile.PhoneNumber != "" {
		params.Phone = stripe.String(profile.PhoneNumber)
	}
	params.AddMetadata("user_id", profile.ID.String())
	params.Context = ctx

	customer, err := s.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create billing customer: %w", err)
	}
	if err := s.profiles.SetStripeCustomer(ctx, profile.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}
