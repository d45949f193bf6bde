// controllers/reseller.go
package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"proxy-admin/models"
	"proxy-admin/reseller"
	"proxy-admin/utils"
)

const defaultPeriod = "month"

// ResellerAPI is the vendor surface the dashboard calls
type ResellerAPI interface {
	Balance(ctx context.Context) (float64, error)
	ListAllSubUsers(ctx context.Context) ([]models.SubUser, error)
	CountSubUsers(ctx context.Context) (int, error)
	CreateSubUser(ctx context.Context, req reseller.CreateSubUserRequest) (*models.SubUser, error)
	UpdateSubUser(ctx context.Context, id models.VendorID, fields map[string]interface{}) (json.RawMessage, error)
	DeleteSubUser(ctx context.Context, id models.VendorID) error
	SubUserBalance(ctx context.Context, id models.VendorID) (float64, error)
	AddBalance(ctx context.Context, id models.VendorID, traffic float64) error
	UsageStats(ctx context.Context, id models.VendorID, period string) (*reseller.UsageStats, error)
	UsageDetails(ctx context.Context, id models.VendorID, period string, limit, offset int) (json.RawMessage, error)
	UsageErrors(ctx context.Context, id models.VendorID, period string, limit, offset int) (json.RawMessage, error)
	SupportedProtocols(ctx context.Context, id models.VendorID) ([]string, error)
	SetSupportedProtocols(ctx context.Context, id models.VendorID, protocols []string) error
	Locations(ctx context.Context, poolType string) (json.RawMessage, error)
	PoolStats(ctx context.Context, poolType string) (json.RawMessage, error)
	SetDefaultPoolParameters(ctx context.Context, id models.VendorID, params reseller.PoolParameters) error
	TotalTraffic(ctx context.Context, period string) (float64, error)
	UsageTrends(ctx context.Context, period string) ([]reseller.UsageTrend, error)
}

// ResellerController serves account-wide vendor data: balance, pools and traffic
type ResellerController struct {
	API ResellerAPI
}

func NewResellerController(api ResellerAPI) *ResellerController {
	return &ResellerController{API: api}
}

func periodParam(r *http.Request) string {
	if p := strings.TrimSpace(r.URL.Query().Get("period")); p != "" {
		return p
	}
	return defaultPeriod
}

// GetBalance returns the reseller account balance
func (rc *ResellerController) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	balance, err := rc.API.Balance(ctx)
	if err != nil {
		respondError(w, r, err, "Failed to fetch balance")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

// GetLocations lists the targetable locations of a pool
func (rc *ResellerController) GetLocations(w http.ResponseWriter, r *http.Request) {
	poolType := r.URL.Query().Get("pool_type")
	if poolType == "" {
		utils.WriteError(w, http.StatusBadRequest, "Pool type is required")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	locations, err := rc.API.Locations(ctx, poolType)
	if err != nil {
		respondError(w, r, err, "Failed to fetch locations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, locations)
}

// GetPoolStats returns the size of a pool
func (rc *ResellerController) GetPoolStats(w http.ResponseWriter, r *http.Request) {
	poolType := r.URL.Query().Get("poolType")
	if poolType == "" {
		utils.WriteError(w, http.StatusBadRequest, "Pool type is required")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	stats, err := rc.API.PoolStats(ctx, poolType)
	if err != nil {
		respondError(w, r, err, "Failed to fetch pool stats")
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

type addTrafficRequest struct {
	SubUserID models.VendorID `json:"subUserId" validate:"required"`
	Traffic   float64         `json:"traffic" validate:"gt=0"`
}

// AddTraffic tops up a sub-user's balance
func (rc *ResellerController) AddTraffic(w http.ResponseWriter, r *http.Request) {
	var req addTrafficRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Failed to update traffic")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	if err := rc.API.AddBalance(ctx, req.SubUserID, req.Traffic); err != nil {
		respondError(w, r, err, "Failed to update traffic")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Traffic updated successfully"})
}

// GetTotalTraffic sums this period's usage over every sub-user
func (rc *ResellerController) GetTotalTraffic(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, vendorTimeout)
	defer cancel()
	total, err := rc.API.TotalTraffic(ctx, periodParam(r))
	if err != nil {
		respondError(w, r, err, "Failed to fetch total traffic")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]float64{"total": total})
}

// GetUsageTrends returns per sub-user usage buckets
func (rc *ResellerController) GetUsageTrends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, vendorTimeout)
	defer cancel()
	trends, err := rc.API.UsageTrends(ctx, periodParam(r))
	if err != nil {
		respondError(w, r, err, "Failed to fetch traffic usage trends")
		return
	}
	utils.WriteJSON(w, http.StatusOK, trends)
}
