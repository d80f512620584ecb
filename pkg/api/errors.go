package api

import (
	"errors"
	"net/http"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/contextkeys"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/observability"
)

// genericInternalError is the only message an internal failure may
// expose in production.
const genericInternalError = "an unexpected error occurred"

// HandleError is the sole translation point from domain errors to HTTP
// responses. Every handler's failure path ends here, guaranteeing the
// uniform {error, details?, requestId} body across all endpoints.
//
// Classification is by explicit error kind, first match wins. The
// original error is logged with the request id before any response is
// written.
func HandleError(w http.ResponseWriter, r *http.Request, err error, production bool) {
	ctx := r.Context()
	requestID := contextkeys.GetRequestID(ctx)
	log := observability.GetLogger(ctx).WithError(err).WithField("request_id", requestID)

	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		log.Warn("request validation failed")
		httputil.WriteErrorBody(w, http.StatusBadRequest, "validation failed", validationErr.Fields, requestID)
		return
	}

	var conflictErr *apperrors.ConflictError
	if errors.As(err, &conflictErr) {
		log.WithField("field", conflictErr.Field).Warn("duplicate record rejected")
		httputil.WriteErrorBody(w, http.StatusConflict, conflictErr.Error(), nil, requestID)
		return
	}

	var notFoundErr *apperrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		log.Warn("record not found")
		httputil.WriteErrorBody(w, http.StatusNotFound, notFoundErr.Error(), nil, requestID)
		return
	}

	var refErr *apperrors.ReferenceError
	if errors.As(err, &refErr) {
		log.WithField("field", refErr.Field).Warn("invalid reference rejected")
		httputil.WriteErrorBody(w, http.StatusBadRequest, refErr.Error(), nil, requestID)
		return
	}

	var storeErr *apperrors.StoreError
	if errors.As(err, &storeErr) {
		log.Error("persistence failure")
		httputil.WriteErrorBody(w, http.StatusInternalServerError, storeErr.Error(), nil, requestID)
		return
	}

	var malformedErr *apperrors.MalformedError
	if errors.As(err, &malformedErr) {
		log.Warn("malformed data rejected")
		httputil.WriteErrorBody(w, http.StatusBadRequest, malformedErr.Error(), nil, requestID)
		return
	}

	var authErr *apperrors.AuthError
	if errors.As(err, &authErr) {
		log.Warn("auth provider rejected request")
		httputil.WriteErrorBody(w, http.StatusUnauthorized, authErr.Error(), nil, requestID)
		return
	}

	var cardErr *apperrors.PaymentCardError
	if errors.As(err, &cardErr) {
		log.Warn("payment card declined")
		httputil.WriteErrorBody(w, http.StatusPaymentRequired, cardErr.Message, nil, requestID)
		return
	}

	var paymentErr *apperrors.PaymentRequestError
	if errors.As(err, &paymentErr) {
		log.Warn("payment provider rejected request")
		httputil.WriteErrorBody(w, http.StatusBadRequest, paymentErr.Error(), nil, requestID)
		return
	}

	var quotaErr *apperrors.QuotaExceededError
	if errors.As(err, &quotaErr) {
		log.Warn("quota exceeded")
		httputil.WriteErrorBody(w, http.StatusForbidden, quotaErr.Error(), nil, requestID)
		return
	}

	var rateErr *apperrors.RateLimitError
	if errors.As(err, &rateErr) {
		log.Warn("rate limit exceeded")
		httputil.WriteErrorBody(w, http.StatusTooManyRequests, rateErr.Error(), nil, requestID)
		return
	}

	log.Error("unhandled error")
	message := genericInternalError
	if !production {
		message = err.Error()
	}
	httputil.WriteErrorBody(w, http.StatusInternalServerError, message, nil, requestID)
}
