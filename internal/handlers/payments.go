package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/payments"
)

type checkoutRequest struct {
	Lines []booking.CartLine `json:"lines"`
}

// checkout places the order upstream (status pending) and opens a Mercado
// Pago preference for the deposit. The order's reference ties the webhook
// notification back to it later.
func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		a.writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "checkout is not configured"})
		return
	}

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	if len(req.Lines) == 0 {
		// Fall back to the cart cookie when the body carries no lines.
		req.Lines = cartFromRequest(r)
	}
	if len(req.Lines) == 0 {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "cart is empty"})
		return
	}

	token := auth.TokenFromContext(r.Context())
	order, err := a.placeOrder(r.Context(), token, req.Lines)
	if err != nil {
		a.writeError(w, err)
		return
	}

	session, err := a.payments.CreateCheckout(r.Context(), order.Reference, req.Lines)
	if err != nil {
		a.logger.Error("checkout preference failed", "order_id", order.ID, "err", err)
		a.writeJSON(w, http.StatusBadGateway, map[string]any{"error": "payment provider unavailable", "order_id": order.ID})
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":      order.ID,
		"reference":     session.Reference,
		"preference_id": session.PreferenceID,
		"init_point":    session.InitPoint,
		"amount":        session.Amount,
	})
}

type webhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// paymentWebhook handles Mercado Pago notifications. The notification only
// names a payment id; the authoritative status comes from looking the
// payment up, which also authenticates the event.
func (a *API) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		a.writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "checkout is not configured"})
		return
	}

	kind := strings.TrimSpace(r.URL.Query().Get("type"))
	if kind == "" {
		kind = strings.TrimSpace(r.URL.Query().Get("topic"))
	}
	paymentID := strings.TrimSpace(r.URL.Query().Get("data.id"))

	var body webhookBody
	if err := decodeBody(r, &body); err == nil {
		if kind == "" {
			kind = body.Type
		}
		if paymentID == "" {
			paymentID = body.Data.ID
		}
	}

	if kind != "" && kind != "payment" {
		// Merchant orders and test pings are acknowledged and dropped.
		a.writeJSON(w, http.StatusOK, map[string]any{"ignored": kind})
		return
	}
	id, err := strconv.Atoi(paymentID)
	if err != nil || id <= 0 {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payment id"})
		return
	}

	result, err := a.payments.LookupPayment(r.Context(), id)
	if err != nil {
		a.logger.Error("payment lookup failed", "payment_id", id, "err", err)
		a.writeJSON(w, http.StatusBadGateway, map[string]any{"error": "payment lookup failed"})
		return
	}

	order, err := a.upstream.FindOrderByReference(r.Context(), a.cfg.ServiceToken, result.Reference)
	if err != nil {
		a.writeError(w, err)
		return
	}
	status := payments.OrderStatusFor(result.Status)
	if _, err := a.upstream.UpdateOrderStatus(r.Context(), a.cfg.ServiceToken, order.ID, status); err != nil {
		a.writeError(w, err)
		return
	}
	a.caches.Orders.Flush()

	a.logger.Info("payment processed",
		"payment_id", id,
		"payment_status", result.Status,
		"order_id", order.ID,
		"order_status", status,
	)
	a.writeJSON(w, http.StatusOK, map[string]any{"order_id": order.ID, "status": status})
}
