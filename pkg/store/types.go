package store

import "time"

// SubscriptionStatus is the billing tier of a user.
type SubscriptionStatus string

const (
	SubscriptionFree SubscriptionStatus = "FREE"
	SubscriptionPro  SubscriptionStatus = "PRO"
)

// User is the tenant record. Soft deletion is tracked via DeletedAt;
// purged rows are removed for real by the retention job.
type User struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionEnds   *time.Time         `json:"subscriptionEnds,omitempty"`
	StripeCustomerID   string             `json:"stripeCustomerId,omitempty"`
	QuoteCount         int                `json:"quoteCount"`
	DeletedAt          *time.Time         `json:"deletedAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Client is a customer a user sends quotes to.
type Client struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product is a catalog entry. Prices are integer cents.
type Product struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UnitPrice   int64     `json:"unitPrice"`
	Unit        string    `json:"unit,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// QuoteStatus tracks the lifecycle of a quote.
type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "DRAFT"
	QuoteSent     QuoteStatus = "SENT"
	QuoteAccepted QuoteStatus = "ACCEPTED"
	QuoteRejected QuoteStatus = "REJECTED"
)

// Quote is a priced quotation. Monetary fields are integer cents;
// TaxRate is a percentage (18 means 18%).
type Quote struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	ClientID   string      `json:"clientId"`
	Number     string      `json:"number"`
	Status     QuoteStatus `json:"status"`
	Subtotal   int64       `json:"subtotal"`
	TaxRate    float64     `json:"taxRate"`
	TaxAmount  int64       `json:"taxAmount"`
	Total      int64       `json:"total"`
	Notes      string      `json:"notes,omitempty"`
	ValidUntil *time.Time  `json:"validUntil,omitempty"`
	Items      []QuoteItem `json:"items"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// QuoteItem is a single line of a quote. ProductID is optional:
// free-form lines carry only a description.
type QuoteItem struct {
	ID          string `json:"id"`
	QuoteID     string `json:"quoteId"`
	ProductID   string `json:"productId,omitempty"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Total       int64  `json:"total"`
}

// Settings holds per-user invoicing defaults. A row is created lazily
// with defaults on first read.
type Settings struct {
	UserID         string    `json:"userId"`
	CompanyName    string    `json:"companyName,omitempty"`
	CompanyEmail   string    `json:"companyEmail,omitempty"`
	CompanyPhone   string    `json:"companyPhone,omitempty"`
	CompanyAddress string    `json:"companyAddress,omitempty"`
	TaxRate        float64   `json:"taxRate"`
	Currency       string    `json:"currency"`
	QuoteValidDays int       `json:"quoteValidDays"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DefaultTaxRate is applied to quotes and settings when the user has
// not configured one.
const DefaultTaxRate = 18.0

// DefaultQuoteValidDays is the default quote validity period.
const DefaultQuoteValidDays = 30

// DefaultCurrency is the default settings currency.
const DefaultCurrency = "EUR"
