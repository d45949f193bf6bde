// controllers/order.go
package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"proxy-admin/models"
	"proxy-admin/store"
	"proxy-admin/utils"
)

// OrderStore is the order persistence the dashboard reads and deletes through
type OrderStore interface {
	Page(ctx context.Context, req store.PageRequest) (*store.Page, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	Delete(ctx context.Context, id string) error
	Facets(ctx context.Context) (*store.Facets, error)
	Stats(ctx context.Context) (*store.OrderStats, error)
	RecentFulfilled(ctx context.Context, n int) ([]models.Order, error)
}

// OrderController handles order listing and administration
type OrderController struct {
	Orders OrderStore
}

func NewOrderController(orders OrderStore) *OrderController {
	return &OrderController{Orders: orders}
}

// GetOrders returns one page of orders, newest first
func (oc *OrderController) GetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size := 0
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "pageSize must be a number")
			return
		}
		size = n
	}
	req := store.PageRequest{
		Size:   size,
		Cursor: q.Get("cursor"),
		Filter: store.Filter{
			Status:        q.Get("status"),
			PaymentMethod: q.Get("paymentMethod"),
			ProductType:   q.Get("productType"),
			DateFrom:      q.Get("dateFrom"),
			DateTo:        q.Get("dateTo"),
		},
	}

	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	page, err := oc.Orders.Page(ctx, req)
	if err != nil {
		respondError(w, r, err, "Failed to fetch orders")
		return
	}
	utils.WriteJSON(w, http.StatusOK, page)
}

// GetFacets returns the values the order filters offer
func (oc *OrderController) GetFacets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	facets, err := oc.Orders.Facets(ctx)
	if err != nil {
		respondError(w, r, err, "Failed to fetch filter options")
		return
	}
	utils.WriteJSON(w, http.StatusOK, facets)
}

// GetOrder returns a single order
func (oc *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	order, err := oc.Orders.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err, "Failed to fetch order")
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

// DeleteOrder permanently removes an order once the operator confirmed
func (oc *OrderController) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirmed {
		utils.WriteError(w, http.StatusBadRequest, "Deleting an order must be confirmed with confirm=true")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	if err := oc.Orders.Delete(ctx, id); err != nil {
		respondError(w, r, err, "Failed to delete order")
		return
	}
	log.WithField("order_id", id).Info("order deleted")
	w.WriteHeader(http.StatusNoContent)
}
