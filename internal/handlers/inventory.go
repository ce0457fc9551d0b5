package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/xano"
)

type productView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

func viewProduct(p xano.Product) productView {
	return productView{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}
}

func (a *API) listInventory(w http.ResponseWriter, r *http.Request) {
	products, err := a.caches.Products.GetOrFill(r.Context(), "all", func(ctx context.Context) ([]xano.Product, error) {
		return a.upstream.ListProducts(ctx)
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, viewProduct(p))
	}
	a.writeJSON(w, http.StatusOK, views)
}

type adjustInventoryRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

func (a *API) adjustInventory(w http.ResponseWriter, r *http.Request) {
	var req adjustInventoryRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.Delta == 0 {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "product_id and a non-zero delta are required"})
		return
	}

	token := auth.TokenFromContext(r.Context())
	product, err := a.upstream.AdjustInventory(r.Context(), token, req.ProductID, req.Delta)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.caches.Products.Invalidate("all")
	a.writeJSON(w, http.StatusOK, viewProduct(product))
}
