package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
)

const maxWebhookBody = 1 << 20

func verifyPaymentHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.ConfirmPayment(r.Context(), appointment.PaymentConfirmation{
			OrderID:          req.OrderID,
			GatewayPaymentID: req.PaymentID,
			Signature:        req.Signature,
			Source:           appointment.SourcePaymentCallback,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

// webhookHandler acknowledges every event it can make sense of. Only
// signature failures and internal errors are reported, the latter with a
// 5xx so the gateway retries.
func webhookHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
			return
		}

		err = svc.HandleWebhook(r.Context(), body, r.Header.Get(payment.SignatureHeader))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case errors.Is(err, appointment.ErrInvalidSignature):
			writeError(w, http.StatusBadRequest, "invalid_signature", err.Error())
		case errors.Is(err, appointment.ErrUnprocessable):
			logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("webhook acknowledged without effect")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		default:
			logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("webhook processing failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "webhook processing failed")
		}
	}
}
