package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// HTTPError is an error with a status code and a stable error code.
type HTTPError struct {
	Status int
	Code   string
}

func (e HTTPError) Error() string { return e.Code }

var (
	ErrBadRequest       = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	ErrUnauthorized     = HTTPError{Status: http.StatusUnauthorized, Code: "tenant_required"}
	ErrNotFound         = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	ErrMethodNotAllowed = HTTPError{Status: http.StatusMethodNotAllowed, Code: "method_not_allowed"}
	ErrTooLarge         = HTTPError{Status: http.StatusRequestEntityTooLarge, Code: "request_too_large"}
	ErrUnsupportedMedia = HTTPError{Status: http.StatusUnsupportedMediaType, Code: "unsupported_media_type"}
	ErrInternal         = HTTPError{Status: http.StatusInternalServerError, Code: "internal_error"}
	ErrWebhookFailed    = HTTPError{Status: http.StatusBadRequest, Code: "webhook_failed"}
)

// Error codes written for domain failures.
const (
	CodeValidation         = "validation_error"
	CodeLimitReached       = subscription.LimitErrorCode
	CodePlanChangeRejected = "plan_change_rejected"
	CodeConflict           = "conflict"
	CodeNotFound           = "not_found"
	CodeNoBillingAccount   = "no_billing_account"
	CodeSignatureInvalid   = "signature_invalid"
	CodeGateway            = "billing_gateway_error"
	CodeNotSupported       = "not_supported"
)

type limitDetails struct {
	Resource plan.Resource `json:"resource"`
	Limit    int64         `json:"limit"`
	Current  int64         `json:"current"`
	Plan     string        `json:"plan"`
}

type violationDetails struct {
	PlanID     string                   `json:"plan_id"`
	Violations []subscription.Violation `json:"violations"`
}

// classify maps an error onto a status code and error body.
// Messages of unexpected errors are not exposed unless verbose is set.
func classify(err error, verbose bool) (int, *ErrorDetail) {
	var (
		httpErr   HTTPError
		limitErr  *subscription.LimitError
		changeErr *subscription.PlanChangeError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Status, &ErrorDetail{Code: httpErr.Code, Message: err.Error()}

	case errors.As(err, &limitErr):
		return http.StatusForbidden, &ErrorDetail{
			Code:    CodeLimitReached,
			Message: limitErr.Error(),
			Details: limitDetails{
				Resource: limitErr.Resource,
				Limit:    limitErr.Limit,
				Current:  limitErr.Current,
				Plan:     limitErr.PlanName,
			},
		}

	case errors.As(err, &changeErr):
		return http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    CodePlanChangeRejected,
			Message: changeErr.Error(),
			Details: violationDetails{PlanID: changeErr.PlanID, Violations: changeErr.Violations},
		}

	case errors.Is(err, subscription.ErrUnknownPlan),
		errors.Is(err, subscription.ErrInvalidResource),
		errors.Is(err, subscription.ErrInvalidRegistration),
		errors.Is(err, subscription.ErrPlanNotPurchasable):
		return http.StatusUnprocessableEntity, &ErrorDetail{Code: CodeValidation, Message: err.Error()}

	case errors.Is(err, subscription.ErrActiveSubscriptionExists),
		errors.Is(err, tenant.ErrDuplicateExternalID):
		return http.StatusConflict, &ErrorDetail{Code: CodeConflict, Message: err.Error()}

	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound):
		return http.StatusNotFound, &ErrorDetail{Code: CodeNotFound, Message: err.Error()}

	case errors.Is(err, subscription.ErrNoBillingCustomer),
		errors.Is(err, subscription.ErrNoExternalSubscription):
		return http.StatusBadRequest, &ErrorDetail{Code: CodeNoBillingAccount, Message: err.Error()}

	case errors.Is(err, tenant.ErrInvalidIdentifier):
		return http.StatusBadRequest, &ErrorDetail{Code: ErrBadRequest.Code, Message: "invalid tenant identifier"}

	case errors.Is(err, tenant.ErrNoTenantInContext):
		return ErrUnauthorized.Status, &ErrorDetail{Code: ErrUnauthorized.Code, Message: "tenant identifier required"}

	case errors.Is(err, billing.ErrSignatureInvalid),
		errors.Is(err, billing.ErrMalformedEvent):
		return http.StatusBadRequest, &ErrorDetail{Code: CodeSignatureInvalid, Message: err.Error()}

	case errors.Is(err, billing.ErrNotSupported):
		return http.StatusNotImplemented, &ErrorDetail{Code: CodeNotSupported, Message: err.Error()}

	case errors.Is(err, billing.ErrGateway):
		detail := &ErrorDetail{Code: CodeGateway, Message: "payment processor request failed"}
		if verbose {
			detail.Message = err.Error()
		}
		return http.StatusBadGateway, detail

	default:
		detail := &ErrorDetail{Code: ErrInternal.Code, Message: http.StatusText(http.StatusInternalServerError)}
		if verbose {
			detail.Message = err.Error()
		}
		return http.StatusInternalServerError, detail
	}
}

// JSONError renders err in the envelope with the mapped status.
func JSONError(err error, verbose bool) Response {
	status, detail := classify(err, verbose)
	return jsonResponse{status: status, body: JSONResponse{Error: detail}}
}
