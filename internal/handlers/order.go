package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/payments"
	"github.com/aluna-estetica/backend/internal/xano"
)

type orderView struct {
	ID        string  `json:"id"`
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	Total     float64 `json:"total"`
	Deposit   float64 `json:"deposit"`
	CreatedAt string  `json:"created_at,omitempty"`
}

func viewOrder(o xano.Order) orderView {
	v := orderView{
		ID:        o.ID,
		Reference: o.Reference,
		Status:    o.Status,
		Total:     o.Total,
		Deposit:   o.Deposit,
	}
	if !o.CreatedAt.IsZero() {
		v.CreatedAt = o.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromContext(r.Context())
	orders, err := a.caches.Orders.GetOrFill(r.Context(), token, func(ctx context.Context) ([]xano.Order, error) {
		return a.upstream.ListOrders(ctx, token)
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOrder(o))
	}
	a.writeJSON(w, http.StatusOK, views)
}

type createOrderRequest struct {
	Lines []booking.CartLine `json:"lines"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	if len(req.Lines) == 0 {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "at least one line is required"})
		return
	}

	token := auth.TokenFromContext(r.Context())
	order, err := a.placeOrder(r.Context(), token, req.Lines)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, viewOrder(order))
}

func (a *API) placeOrder(ctx context.Context, token string, lines []booking.CartLine) (xano.Order, error) {
	var total, deposit float64
	orderLines := make([]xano.OrderLine, 0, len(lines))
	for _, line := range lines {
		total += line.Price
		deposit += payments.Deposit(line.Price)
		orderLines = append(orderLines, xano.OrderLine{
			Treatment: line.Treatment,
			Zone:      line.Zone,
			Sessions:  line.Sessions,
			Date:      line.Date,
			Time:      line.Time,
			Price:     line.Price,
		})
	}

	order, err := a.upstream.CreateOrder(ctx, token, xano.OrderPayload{
		Reference: uuid.NewString(),
		Total:     total,
		Deposit:   deposit,
		Status:    booking.StatusPending,
		Lines:     orderLines,
	})
	if err != nil {
		return xano.Order{}, err
	}
	a.caches.Orders.Invalidate(token)
	return order, nil
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

func (a *API) updateOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id query parameter is required"})
		return
	}

	var req updateOrderRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	status, err := xano.NormalizeStatus(req.Status)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	token := auth.TokenFromContext(r.Context())
	order, err := a.upstream.UpdateOrderStatus(r.Context(), token, id, status)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.caches.Orders.Flush()
	a.writeJSON(w, http.StatusOK, viewOrder(order))
}
