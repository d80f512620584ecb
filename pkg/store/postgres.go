package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/asque/asque/pkg/apperrors"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against the given URL and
// verifies it with a ping.
func NewPostgresStore(url string, maxConns, minConns int, timeout time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Users

func (s *PostgresStore) UpsertUser(ctx context.Context, id, email string) (*User, error) {
	query := `
		INSERT INTO users (id, email, subscription_status, quote_count, created_at, updated_at)
		VALUES ($1, $2, 'FREE', 0, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, updated_at = NOW()
		RETURNING id, email, COALESCE(name, ''), subscription_status, subscription_ends,
			COALESCE(stripe_customer_id, ''), quote_count, deleted_at, created_at, updated_at`

	u := &User{}
	err := s.db.QueryRowContext(ctx, query, id, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.SubscriptionStatus, &u.SubscriptionEnds,
		&u.StripeCustomerID, &u.QuoteCount, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, COALESCE(name, ''), subscription_status, subscription_ends,
			COALESCE(stripe_customer_id, ''), quote_count, deleted_at, created_at, updated_at
		FROM users WHERE id = $1 AND deleted_at IS NULL`

	u := &User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.SubscriptionStatus, &u.SubscriptionEnds,
		&u.StripeCustomerID, &u.QuoteCount, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return u, nil
}

func (s *PostgresStore) GetUserByStripeCustomer(ctx context.Context, customerID string) (*User, error) {
	query := `
		SELECT id, email, COALESCE(name, ''), subscription_status, subscription_ends,
			COALESCE(stripe_customer_id, ''), quote_count, deleted_at, created_at, updated_at
		FROM users WHERE stripe_customer_id = $1 AND deleted_at IS NULL`

	u := &User{}
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(
		&u.ID, &u.Email, &u.Name, &u.SubscriptionStatus, &u.SubscriptionEnds,
		&u.StripeCustomerID, &u.QuoteCount, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return u, nil
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, userID string, status SubscriptionStatus, periodEnd *time.Time) error {
	query := `
		UPDATE users SET subscription_status = $2, subscription_ends = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, userID, status, periodEnd)
	if err != nil {
		return mapError(err, "user")
	}
	return requireRow(result, "user")
}

func (s *PostgresStore) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	query := `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, userID, customerID)
	if err != nil {
		return mapError(err, "user")
	}
	return requireRow(result, "user")
}

// IncrementQuoteCount bumps the usage counter by one, creating the
// user row if it does not exist yet.
func (s *PostgresStore) IncrementQuoteCount(ctx context.Context, userID, email string) error {
	query := `
		INSERT INTO users (id, email, subscription_status, quote_count, created_at, updated_at)
		VALUES ($1, $2, 'FREE', 1, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET quote_count = users.quote_count + 1, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, userID, email); err != nil {
		return mapError(err, "user")
	}
	return nil
}

func (s *PostgresStore) SoftDeleteUser(ctx context.Context, userID string) error {
	query := `UPDATE users SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return mapError(err, "user")
	}
	return requireRow(result, "user")
}

func (s *PostgresStore) PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error) {
	query := `DELETE FROM users WHERE deleted_at IS NOT NULL AND deleted_at < $1`

	result, err := s.db.ExecContext(ctx, query, deletedBefore)
	if err != nil {
		return 0, mapError(err, "user")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, mapError(err, "user")
	}
	return n, nil
}

// Clients

func (s *PostgresStore) CreateClient(ctx context.Context, c *Client) error {
	query := `
		INSERT INTO clients (id, user_id, name, email, phone, company, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Email, c.Phone, c.Company, c.Address).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return mapError(err, "client")
	}
	return nil
}

func (s *PostgresStore) ListClients(ctx context.Context, userID string) ([]*Client, error) {
	query := `
		SELECT id, user_id, name, COALESCE(email, ''), COALESCE(phone, ''),
			COALESCE(company, ''), COALESCE(address, ''), created_at, updated_at
		FROM clients WHERE user_id = $1 ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "client")
	}
	defer rows.Close()

	clients := make([]*Client, 0)
	for rows.Next() {
		c := &Client{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone,
			&c.Company, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, mapError(err, "client")
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "client")
	}
	return clients, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, userID, id string) (*Client, error) {
	query := `
		SELECT id, user_id, name, COALESCE(email, ''), COALESCE(phone, ''),
			COALESCE(company, ''), COALESCE(address, ''), created_at, updated_at
		FROM clients WHERE user_id = $1 AND id = $2`

	c := &Client{}
	err := s.db.QueryRowContext(ctx, query, userID, id).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone,
		&c.Company, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "client")
	}
	return c, nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, c *Client) error {
	query := `
		UPDATE clients SET name = $3, email = $4, phone = $5, company = $6, address = $7, updated_at = NOW()
		WHERE user_id = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, query,
		c.UserID, c.ID, c.Name, c.Email, c.Phone, c.Company, c.Address)
	if err != nil {
		return mapError(err, "client")
	}
	return requireRow(result, "client")
}

func (s *PostgresStore) DeleteClient(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return mapError(err, "client")
	}
	return requireRow(result, "client")
}

// Products

func (s *PostgresStore) CreateProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (id, user_id, name, description, unit_price, unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.UserID, p.Name, p.Description, p.UnitPrice, p.Unit).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapError(err, "product")
	}
	return nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, userID string) ([]*Product, error) {
	query := `
		SELECT id, user_id, name, COALESCE(description, ''), unit_price, COALESCE(unit, ''),
			created_at, updated_at
		FROM products WHERE user_id = $1 ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "product")
	}
	defer rows.Close()

	products := make([]*Product, 0)
	for rows.Next() {
		p := &Product{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description,
			&p.UnitPrice, &p.Unit, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, mapError(err, "product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "product")
	}
	return products, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, userID, id string) (*Product, error) {
	query := `
		SELECT id, user_id, name, COALESCE(description, ''), unit_price, COALESCE(unit, ''),
			created_at, updated_at
		FROM products WHERE user_id = $1 AND id = $2`

	p := &Product{}
	err := s.db.QueryRowContext(ctx, query, userID, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description,
		&p.UnitPrice, &p.Unit, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "product")
	}
	return p, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *Product) error {
	query := `
		UPDATE products SET name = $3, description = $4, unit_price = $5, unit = $6, updated_at = NOW()
		WHERE user_id = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, query,
		p.UserID, p.ID, p.Name, p.Description, p.UnitPrice, p.Unit)
	if err != nil {
		return mapError(err, "product")
	}
	return requireRow(result, "product")
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return mapError(err, "product")
	}
	return requireRow(result, "product")
}

// Quotes

// CreateQuote inserts the quote and its items in one transaction.
func (s *PostgresStore) CreateQuote(ctx context.Context, q *Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "quote")
	}
	defer tx.Rollback()

	quoteQuery := `
		INSERT INTO quotes (id, user_id, client_id, number, status, subtotal, tax_rate,
			tax_amount, total, notes, valid_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, quoteQuery,
		q.ID, q.UserID, q.ClientID, q.Number, q.Status, q.Subtotal, q.TaxRate,
		q.TaxAmount, q.Total, q.Notes, q.ValidUntil).
		Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return mapError(err, "quote")
	}

	itemQuery := `
		INSERT INTO quote_items (id, quote_id, product_id, description, quantity, unit_price, total)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`

	for i := range q.Items {
		item := &q.Items[i]
		item.QuoteID = q.ID
		if _, err := tx.ExecContext(ctx, itemQuery,
			item.ID, item.QuoteID, item.ProductID, item.Description,
			item.Quantity, item.UnitPrice, item.Total); err != nil {
			return mapError(err, "quote item")
		}
	}

	if err := tx.Commit(); err != nil {
		return mapError(err, "quote")
	}
	return nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context, userID string) ([]*Quote, error) {
	query := `
		SELECT id, user_id, client_id, number, status, subtotal, tax_rate, tax_amount,
			total, COALESCE(notes, ''), valid_until, created_at, updated_at
		FROM quotes WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "quote")
	}
	defer rows.Close()

	quotes := make([]*Quote, 0)
	for rows.Next() {
		q := &Quote{}
		if err := rows.Scan(&q.ID, &q.UserID, &q.ClientID, &q.Number, &q.Status,
			&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.Total, &q.Notes,
			&q.ValidUntil, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, mapError(err, "quote")
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "quote")
	}
	return quotes, nil
}

func (s *PostgresStore) GetQuote(ctx context.Context, userID, id string) (*Quote, error) {
	query := `
		SELECT id, user_id, client_id, number, status, subtotal, tax_rate, tax_amount,
			total, COALESCE(notes, ''), valid_until, created_at, updated_at
		FROM quotes WHERE user_id = $1 AND id = $2`

	q := &Quote{}
	err := s.db.QueryRowContext(ctx, query, userID, id).Scan(
		&q.ID, &q.UserID, &q.ClientID, &q.Number, &q.Status,
		&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.Total, &q.Notes,
		&q.ValidUntil, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "quote")
	}

	items, err := s.listQuoteItems(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func (s *PostgresStore) listQuoteItems(ctx context.Context, quoteID string) ([]QuoteItem, error) {
	query := `
		SELECT id, quote_id, COALESCE(product_id, ''), description, quantity, unit_price, total
		FROM quote_items WHERE quote_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, quoteID)
	if err != nil {
		return nil, mapError(err, "quote item")
	}
	defer rows.Close()

	items := make([]QuoteItem, 0)
	for rows.Next() {
		var item QuoteItem
		if err := rows.Scan(&item.ID, &item.QuoteID, &item.ProductID,
			&item.Description, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, mapError(err, "quote item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "quote item")
	}
	return items, nil
}

func (s *PostgresStore) UpdateQuoteStatus(ctx context.Context, userID, id string, status QuoteStatus) error {
	query := `UPDATE quotes SET status = $3, updated_at = NOW() WHERE user_id = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, query, userID, id, status)
	if err != nil {
		return mapError(err, "quote")
	}
	return requireRow(result, "quote")
}

func (s *PostgresStore) DeleteQuote(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return mapError(err, "quote")
	}
	return requireRow(result, "quote")
}

// CountQuotesInMonth returns how many quotes a user created in the
// given calendar month. Used to assign sequential quote numbers.
func (s *PostgresStore) CountQuotesInMonth(ctx context.Context, userID string, year int, month time.Month) (int, error) {
	query := `
		SELECT COUNT(*) FROM quotes
		WHERE user_id = $1
			AND created_at >= $2
			AND created_at < $3`

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, start, end).Scan(&count); err != nil {
		return 0, mapError(err, "quote")
	}
	return count, nil
}

// Settings

// GetSettings returns the user's settings, creating a default row on
// first read.
func (s *PostgresStore) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	query := `
		INSERT INTO settings (user_id, tax_rate, currency, quote_valid_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, COALESCE(company_name, ''), COALESCE(company_email, ''),
			COALESCE(company_phone, ''), COALESCE(company_address, ''),
			tax_rate, currency, quote_valid_days, created_at, updated_at`

	st := &Settings{}
	err := s.db.QueryRowContext(ctx, query, userID, DefaultTaxRate, DefaultCurrency, DefaultQuoteValidDays).Scan(
		&st.UserID, &st.CompanyName, &st.CompanyEmail, &st.CompanyPhone, &st.CompanyAddress,
		&st.TaxRate, &st.Currency, &st.QuoteValidDays, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "settings")
	}
	return st, nil
}

func (s *PostgresStore) UpsertSettings(ctx context.Context, st *Settings) error {
	query := `
		INSERT INTO settings (user_id, company_name, company_email, company_phone,
			company_address, tax_rate, currency, quote_valid_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			company_email = EXCLUDED.company_email,
			company_phone = EXCLUDED.company_phone,
			company_address = EXCLUDED.company_address,
			tax_rate = EXCLUDED.tax_rate,
			currency = EXCLUDED.currency,
			quote_valid_days = EXCLUDED.quote_valid_days,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		st.UserID, st.CompanyName, st.CompanyEmail, st.CompanyPhone,
		st.CompanyAddress, st.TaxRate, st.Currency, st.QuoteValidDays).
		Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return mapError(err, "settings")
	}
	return nil
}

// requireRow converts a zero-row update/delete into a not-found error.
func requireRow(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return mapError(err, resource)
	}
	if n == 0 {
		return &apperrors.NotFoundError{Resource: resource}
	}
	return nil
}
