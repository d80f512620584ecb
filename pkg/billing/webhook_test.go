package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func TestConstructEventValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"customer":"cus_123"}}}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	event, err := constructEventAt(payload, header, testSecret, now, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
}

func TestConstructEventWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	_, err := constructEventAt(payload, header, testSecret, now, DefaultTolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	tampered := []byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`)
	_, err := constructEventAt(tampered, header, testSecret, now, DefaultTolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	signedAt := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, testSecret, signedAt)

	_, err := constructEventAt(payload, header, testSecret, time.Now(), DefaultTolerance)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	for _, header := range []string{"", "t=abc,v1=deadbeef", "v1=deadbeef", "t=12345"} {
		_, err := ConstructEvent(payload, header, testSecret)
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestConstructEventAcceptsSecondSignature(t *testing.T) {
	// Secret rotation sends one v1 per active secret.
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	now := time.Now()
	good := SignPayload(payload, testSecret, now)
	bad := SignPayload(payload, "whsec_old", now)
	combined := bad + ",v1=" + good[len(good)-64:]

	event, err := constructEventAt(payload, combined, testSecret, now, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}
