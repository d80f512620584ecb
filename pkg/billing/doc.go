// Package billing integrates with Stripe: checkout and billing-portal
// session creation, webhook verification and the subscription
// reconciliation (sync) procedure.
//
// The provider surface is a thin REST client behind the Provider
// interface so the Service can be tested against a fake. Webhook
// delivery is not exactly-once; Sync is the idempotent repair path a
// client triggers after a payment flow completes.
package billing
