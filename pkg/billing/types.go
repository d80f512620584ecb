package billing

import "encoding/json"

// Webhook event types the service reacts to. Anything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified webhook event. Data.Object carries the raw
// provider object and is decoded per event type.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSessionObject is the event payload for checkout.session.completed.
type CheckoutSessionObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// InvoiceObject is the event payload for invoice.payment_succeeded.
type InvoiceObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	// PeriodEnd is a unix timestamp for the paid period's end.
	PeriodEnd int64 `json:"period_end"`
	Lines     struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// SubscriptionObject is the event payload for customer.subscription.deleted.
type SubscriptionObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// Subscription is a provider-side subscription record.
type Subscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Customer         string `json:"customer"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// Customer is a provider-side customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CheckoutSession is a hosted checkout session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PortalSession is a hosted billing-portal session.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// listResponse is the provider's list envelope.
type listResponse[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
