package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/internal/orders"
)

// StripeWebhook accepts the payment processor's checkout.session.completed
// event and confirms the referenced order. A 5xx makes Stripe redeliver
// the event, which re-runs Confirm; the idempotent provisioner turns that
// into a retry of only the failed units.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event := stripe.Event{}
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Error("failed to parse webhook JSON", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.Config.TestMode {
		logger.Debug("skipping webhook signature verification (test mode)")
	} else {
		signatureHeader := r.Header.Get("Stripe-Signature")
		event, err = webhook.ConstructEvent(payload, signatureHeader, s.Config.StripeWebhookSecret)
		if err != nil {
			logger.Error("webhook signature verification failed", map[string]interface{}{
				"error":     err.Error(),
				"signature": signatureHeader,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			logger.Error("failed to unmarshal checkout session", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		orderID, err := strconv.ParseInt(session.Metadata["order_id"], 10, 64)
		if err != nil || orderID <= 0 {
			logger.Error("checkout session without usable order_id metadata", map[string]interface{}{
				"event_id":   event.ID,
				"session_id": session.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := s.Orders.Confirm(r.Context(), orderID); err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				logger.Error("checkout session references unknown order", map[string]interface{}{
					"event_id": event.ID,
					"order_id": orderID,
				})
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			logger.Error("order confirmation failed, requesting redelivery", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
				"order_id": orderID,
			})
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		logger.Info("unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"received": "true"}); err != nil {
		logger.Error("failed to encode webhook response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
