// Package stripe implements the clubsync billing client and webhook intake on
// Stripe Connect.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/clubsync/pkg/billing"
	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

const (
	providerName = "stripe"

	endpointCustomersList     = "/v1/customers"
	endpointSubscriptionsList = "/v1/subscriptions"
	endpointSubscriptionGet   = "/v1/subscriptions/{id}"

	// listStatusAll includes canceled subscriptions, which the default list omits
	listStatusAll = "all"
)

// Client implements clubsync.BillingClient against the Stripe API.
// Every call is made on behalf of the given connected account.
type Client struct {
	stripe  *stripe.Client
	metrics billing.Metrics
	logger  clubsync.Logger
}

var _ clubsync.BillingClient = (*Client)(nil)

// NewClient creates a Stripe client from the platform API key in config
func NewClient(config billing.Config) (*Client, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: billing.DefaultHTTPTimeout}
	}

	// Failures surface to the caller as-is; no retries
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(config.BackendURL, "/"))
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &clubsync.NoopLogger{}
	}

	return &Client{
		stripe:  stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig))),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

// ListCustomersByEmail implements clubsync.BillingClient. Every customer sharing
// the email is returned.
func (c *Client) ListCustomersByEmail(
	ctx context.Context, accountID, email string,
) ([]clubsync.RemoteCustomer, error) {
	if accountID == "" {
		return nil, billing.ErrAccountRequired
	}

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.SetStripeAccount(accountID)

	startTime := time.Now()
	customers := make([]clubsync.RemoteCustomer, 0)
	for cust, err := range c.stripe.V1Customers.List(ctx, params) {
		if err != nil {
			c.recordCall(endpointCustomersList, startTime, err)
			return nil, wrapAPIError(err)
		}
		customers = append(customers, customerFromStripe(cust))
	}
	c.recordCall(endpointCustomersList, startTime, nil)
	return customers, nil
}

// ListSubscriptions implements clubsync.BillingClient. Subscriptions in every
// status are returned.
func (c *Client) ListSubscriptions(
	ctx context.Context, accountID, customerID string,
) ([]clubsync.RemoteSubscription, error) {
	if accountID == "" {
		return nil, billing.ErrAccountRequired
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(listStatusAll),
	}
	params.SetStripeAccount(accountID)

	startTime := time.Now()
	subs := make([]clubsync.RemoteSubscription, 0)
	for sub, err := range c.stripe.V1Subscriptions.List(ctx, params) {
		if err != nil {
			c.recordCall(endpointSubscriptionsList, startTime, err)
			return nil, wrapAPIError(err)
		}
		subs = append(subs, *subscriptionFromStripe(sub))
	}
	c.recordCall(endpointSubscriptionsList, startTime, nil)
	return subs, nil
}

// RetrieveSubscription implements clubsync.BillingClient
func (c *Client) RetrieveSubscription(
	ctx context.Context, accountID, subscriptionID string,
) (*clubsync.RemoteSubscription, error) {
	if accountID == "" {
		return nil, billing.ErrAccountRequired
	}

	params := &stripe.SubscriptionRetrieveParams{}
	params.SetStripeAccount(accountID)

	startTime := time.Now()
	sub, err := c.stripe.V1Subscriptions.Retrieve(ctx, subscriptionID, params)
	c.recordCall(endpointSubscriptionGet, startTime, err)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func (c *Client) recordCall(endpoint string, startTime time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		c.logger.Warn("stripe api call failed",
			clubsync.Field{Key: "endpoint", Value: endpoint},
			clubsync.ErrorField(err),
		)
	}
	c.metrics.RecordAPICall(providerName, endpoint, status)
	c.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(startTime))
}

// APIError carries a Stripe API failure. Error returns the provider's message.
type APIError struct {
	HTTPStatusCode int
	Code           string
	Message        string
	Err            error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

// wrapAPIError exposes the human-readable message of a *stripe.Error, whose own
// Error method renders JSON
func wrapAPIError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return &APIError{
			HTTPStatusCode: stripeErr.HTTPStatusCode,
			Code:           string(stripeErr.Code),
			Message:        stripeErr.Msg,
			Err:            err,
		}
	}
	return err
}
