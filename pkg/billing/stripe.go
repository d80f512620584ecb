package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/asque/asque/pkg/apperrors"
)

const defaultAPIBase = "https://api.stripe.com/v1"

// Provider is the payment provider boundary used by the Service.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
}

// CheckoutParams configures a hosted checkout session.
type CheckoutParams struct {
	CustomerID  string
	Email       string
	UserID      string
	PriceCents  int64
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// StripeClient is a minimal REST client for the Stripe API. The secret
// key rides on every request as a bearer token via the oauth2 transport.
type StripeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStripeClient creates a client authenticated with the given secret key.
func NewStripeClient(apiKey string) *StripeClient {
	base := context.WithValue(context.Background(), oauth2.HTTPClient,
		&http.Client{Timeout: 30 * time.Second})
	return &StripeClient{
		baseURL: defaultAPIBase,
		httpClient: oauth2.NewClient(base,
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})),
	}
}

// NewStripeClientWithBaseURL points the client at a different API base.
// Used by tests.
func NewStripeClientWithBaseURL(apiKey, baseURL string) *StripeClient {
	c := NewStripeClient(apiKey)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// CreateCheckoutSession creates a subscription checkout session. The
// user id travels in session metadata so the completion webhook can be
// attributed without a customer lookup.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[userId]", params.UserID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.PriceCents, 10))
	form.Set("line_items[0][price_data][recurring][interval]", "month")
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	} else if params.Email != "" {
		form.Set("customer_email", params.Email)
	}

	session := &CheckoutSession{}
	if err := c.post(ctx, "/checkout/sessions", form, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CreatePortalSession creates a billing-portal session for an existing
// customer.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	session := &PortalSession{}
	if err := c.post(ctx, "/billing_portal/sessions", form, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListActiveSubscriptions returns the customer's active subscriptions.
func (c *StripeClient) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	query := url.Values{}
	query.Set("customer", customerID)
	query.Set("status", "active")
	query.Set("limit", "10")

	var list listResponse[Subscription]
	if err := c.get(ctx, "/subscriptions?"+query.Encode(), &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// FindCustomerByEmail returns the first customer matching email, or nil
// when none exists.
func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	query := url.Values{}
	query.Set("email", email)
	query.Set("limit", "1")

	var list listResponse[Customer]
	if err := c.get(ctx, "/customers?"+query.Encode(), &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

func (c *StripeClient) get(ctx context.Context, path string, dest interface{}) error {
	return c.do(ctx, http.MethodGet, path, "", dest)
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, dest interface{}) error {
	return c.do(ctx, http.MethodPost, path, form.Encode(), dest)
}

func (c *StripeClient) do(ctx context.Context, method, path, body string, dest interface{}) error {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build stripe request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}

	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("failed to decode stripe response: %w", err)
		}
	}
	return nil
}

// decodeError translates the provider's error envelope into a domain
// error kind at the boundary.
func decodeError(status int, raw []byte) error {
	var envelope apiError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Type != "" {
		switch envelope.Error.Type {
		case "card_error":
			return &apperrors.PaymentCardError{Message: envelope.Error.Message}
		case "invalid_request_error":
			return &apperrors.PaymentRequestError{Message: envelope.Error.Message}
		}
		return fmt.Errorf("stripe error (%d): %s", status, envelope.Error.Message)
	}
	return fmt.Errorf("stripe error (%d)", status)
}
