package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
)

type webhookAck struct {
	Received bool `json:"received"`
}

// handleWebhook passes the raw body and signature to the reconciler.
// Every failure answers 400 and the processor redelivers on its own schedule.
func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(w, r, ErrTooLarge)
			return
		}
		s.renderError(w, r, errors.Join(ErrBadRequest, err))
		return
	}

	err = s.svc.Webhooks.Handle(r.Context(), payload, r.Header.Get(s.opts.signatureHeader))
	if err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) || errors.Is(err, billing.ErrMalformedEvent) {
			s.opts.logger.WarnContext(r.Context(), "rejected billing webhook", logger.Error(err))
			s.renderError(w, r, err)
			return
		}
		s.opts.logger.ErrorContext(r.Context(), "failed to process billing webhook", logger.Error(err))
		s.renderError(w, r, ErrWebhookFailed)
		return
	}

	if err := Raw(http.StatusOK, webhookAck{Received: true}).Render(w, r); err != nil {
		s.opts.logger.ErrorContext(r.Context(), "failed to acknowledge webhook", logger.Error(err))
	}
}
