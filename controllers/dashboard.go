// controllers/dashboard.go
package controllers

import (
	"context"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"proxy-admin/models"
	"proxy-admin/store"
	"proxy-admin/utils"
)

const recentOrders = 10

// DashboardController serves the landing page summary
type DashboardController struct {
	Orders OrderStore
}

func NewDashboardController(orders OrderStore) *DashboardController {
	return &DashboardController{Orders: orders}
}

type dashboardResponse struct {
	store.OrderStats
	RecentOrders []models.Order `json:"recentOrders"`
}

// GetDashboard returns revenue figures and the latest fulfilled orders
func (dc *DashboardController) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()

	stats, err := dc.Orders.Stats(ctx)
	if err != nil {
		respondError(w, r, err, "Failed to fetch dashboard")
		return
	}
	recent, err := dc.Orders.RecentFulfilled(ctx, recentOrders)
	if err != nil {
		respondError(w, r, err, "Failed to fetch dashboard")
		return
	}
	utils.WriteJSON(w, http.StatusOK, dashboardResponse{OrderStats: *stats, RecentOrders: recent})
}

// SessionState reports on the vendor session
type SessionState interface {
	Valid() bool
	ExpiresAt() time.Time
}

// Pinger checks the database connection
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// HealthController reports whether the dependencies are reachable
type HealthController struct {
	DB      Pinger
	Session SessionState
}

func NewHealthController(db Pinger, session SessionState) *HealthController {
	return &HealthController{DB: db, Session: session}
}

// GetHealth pings the database and reports the vendor session state. Only a
// failed ping makes the service unhealthy; the vendor token is fetched lazily.
func (hc *HealthController) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	database := "up"
	if err := hc.DB.Ping(ctx, readpref.Primary()); err != nil {
		status, code, database = "degraded", http.StatusServiceUnavailable, "down"
	}

	vendor := map[string]interface{}{"sessionValid": hc.Session.Valid()}
	if hc.Session.Valid() {
		vendor["expiresAt"] = hc.Session.ExpiresAt()
	}
	utils.WriteJSON(w, code, map[string]interface{}{
		"status":   status,
		"database": database,
		"reseller": vendor,
	})
}
