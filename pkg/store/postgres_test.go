package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asque/asque/pkg/apperrors"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func userRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "name", "subscription_status", "subscription_ends",
		"stripe_customer_id", "quote_count", "deleted_at", "created_at", "updated_at",
	}).AddRow("u1", "u1@example.com", "", "FREE", nil, "", 3, nil, now, now)
}

func TestGetUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(userRows())

	u, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, SubscriptionFree, u.SubscriptionStatus)
	assert.Equal(t, 3, u.QuoteCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetUser(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateClientDuplicateMapsToConflict(t *testing.T) {
	s, mock := newMockStore(t)

	pqErr := &pq.Error{Code: "23505", Constraint: "clients_name_key", Table: "clients"}
	mock.ExpectQuery(`INSERT INTO clients`).
		WillReturnError(pqErr)

	err := s.CreateClient(context.Background(), &Client{ID: "c1", UserID: "u1", Name: "Acme"})
	require.Error(t, err)

	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "name", conflict.Field)
}

func TestCreateQuoteBadClientMapsToReference(t *testing.T) {
	s, mock := newMockStore(t)

	pqErr := &pq.Error{Code: "23503", Constraint: "quotes_client_id_fkey", Table: "quotes"}
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO quotes`).WillReturnError(pqErr)
	mock.ExpectRollback()

	err := s.CreateQuote(context.Background(), &Quote{ID: "q1", UserID: "u1", ClientID: "nope"})
	require.Error(t, err)

	var ref *apperrors.ReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "client_id", ref.Field)
}

func TestCreateQuoteInsertsItemsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO quotes`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`INSERT INTO quote_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO quote_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	q := &Quote{
		ID: "q1", UserID: "u1", ClientID: "c1", Number: "Q-202608-0001",
		Status: QuoteDraft, Subtotal: 10000, TaxRate: 18, TaxAmount: 1800, Total: 11800,
		Items: []QuoteItem{
			{ID: "i1", Description: "Design", Quantity: 2, UnitPrice: 2500, Total: 5000},
			{ID: "i2", Description: "Dev", Quantity: 1, UnitPrice: 5000, Total: 5000},
		},
	}
	require.NoError(t, s.CreateQuote(context.Background(), q))
	assert.Equal(t, "q1", q.Items[0].QuoteID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClientZeroRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE clients SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateClient(context.Background(), &Client{ID: "c1", UserID: "u1", Name: "Acme"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIncrementQuoteCountUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users .+ ON CONFLICT \(id\) DO UPDATE SET quote_count = users\.quote_count \+ 1`).
		WithArgs("u1", "u1@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.IncrementQuoteCount(context.Background(), "u1", "u1@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeDeletedUsers(t *testing.T) {
	s, mock := newMockStore(t)

	cutoff := time.Now().AddDate(0, 0, -15)
	mock.ExpectExec(`DELETE FROM users WHERE deleted_at IS NOT NULL`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.PurgeDeletedUsers(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCountQuotesInMonth(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM quotes`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountQuotesInMonth(context.Background(), "u1", 2026, time.August)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMalformedQueryMapsToMalformed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WillReturnError(&pq.Error{Code: "42703"})

	_, err := s.GetUser(context.Background(), "u1")
	require.Error(t, err)

	var malformed *apperrors.MalformedError
	assert.ErrorAs(t, err, &malformed)
}

func TestOtherDriverErrorMapsToStoreError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WillReturnError(assert.AnError)

	_, err := s.GetUser(context.Background(), "u1")
	require.Error(t, err)

	var storeErr *apperrors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "database error occurred", storeErr.Error())
}
