package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/internal/orders"
	"keymint.app/commerce/models"
)

// OrderContracts backs the order-detail widget: it returns every contract
// provisioned for one order. Only the order's owner and administrators may
// read it.
func (s *Server) OrderContracts(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := s.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		logger.Error("order lookup failed", map[string]interface{}{
			"error":    err.Error(),
			"order_id": orderID,
		})
		writeError(w, http.StatusInternalServerError, "Failed to load order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	user := currentUser(r)
	if !user.IsAdmin && order.UserID != user.ID {
		writeError(w, http.StatusForbidden, "You are not allowed to view this order")
		return
	}

	contracts, err := s.Store.ContractsByOrder(r.Context(), orderID)
	if err != nil {
		logger.Error("contract lookup failed", map[string]interface{}{
			"error":    err.Error(),
			"order_id": orderID,
		})
		writeError(w, http.StatusInternalServerError, "Failed to load contracts")
		return
	}

	if contracts == nil {
		contracts = []*models.Contract{}
	}
	writeSuccess(w, contracts)
}

// ConfirmOrder is the direct provisioning trigger, used by the shop's
// order-completion path and by operators re-running a partially failed
// order. Re-confirming is idempotent.
func (s *Server) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	if err := s.Orders.Confirm(r.Context(), orderID); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		logger.Error("order confirmation finished with errors", map[string]interface{}{
			"error":    err.Error(),
			"order_id": orderID,
		})
		writeError(w, http.StatusInternalServerError, "Provisioning incomplete, confirm again to retry failed units")
		return
	}

	writeSuccess(w, "Order confirmed")
}
