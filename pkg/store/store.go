package store

import (
	"context"
	"time"
)

// Store is the persistence boundary. Implementations surface failures
// as apperrors types: ConflictError for duplicates, NotFoundError for
// missing rows, ReferenceError for bad foreign keys, MalformedError
// for bad query shapes and StoreError for everything else.
type Store interface {
	// Users
	UpsertUser(ctx context.Context, id, email string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByStripeCustomer(ctx context.Context, customerID string) (*User, error)
	UpdateSubscription(ctx context.Context, userID string, status SubscriptionStatus, periodEnd *time.Time) error
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
	IncrementQuoteCount(ctx context.Context, userID, email string) error
	SoftDeleteUser(ctx context.Context, userID string) error
	PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error)

	// Clients
	CreateClient(ctx context.Context, c *Client) error
	ListClients(ctx context.Context, userID string) ([]*Client, error)
	GetClient(ctx context.Context, userID, id string) (*Client, error)
	UpdateClient(ctx context.Context, c *Client) error
	DeleteClient(ctx context.Context, userID, id string) error

	// Products
	CreateProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context, userID string) ([]*Product, error)
	GetProduct(ctx context.Context, userID, id string) (*Product, error)
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, userID, id string) error

	// Quotes
	CreateQuote(ctx context.Context, q *Quote) error
	ListQuotes(ctx context.Context, userID string) ([]*Quote, error)
	GetQuote(ctx context.Context, userID, id string) (*Quote, error)
	UpdateQuoteStatus(ctx context.Context, userID, id string, status QuoteStatus) error
	DeleteQuote(ctx context.Context, userID, id string) error
	CountQuotesInMonth(ctx context.Context, userID string, year int, month time.Month) (int, error)

	// Settings
	GetSettings(ctx context.Context, userID string) (*Settings, error)
	UpsertSettings(ctx context.Context, s *Settings) error

	// Close releases the underlying connection pool.
	Close() error
}
