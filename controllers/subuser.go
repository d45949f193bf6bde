// controllers/subuser.go
package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"proxy-admin/models"
	"proxy-admin/reseller"
	"proxy-admin/utils"
)

// SubUserMirror keeps the local copy of vendor sub-users
type SubUserMirror interface {
	Mirror(ctx context.Context, su models.SubUser) error
	Remove(ctx context.Context, id string) error
}

// SubUserController manages reseller sub-accounts
type SubUserController struct {
	API    ResellerAPI
	Mirror SubUserMirror
}

func NewSubUserController(api ResellerAPI, mirror SubUserMirror) *SubUserController {
	return &SubUserController{API: api, Mirror: mirror}
}

func subUserID(r *http.Request) models.VendorID {
	return models.VendorID(mux.Vars(r)["id"])
}

// GetSubUsers lists every sub-user
func (sc *SubUserController) GetSubUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, vendorTimeout)
	defer cancel()
	items, err := sc.API.ListAllSubUsers(ctx)
	if err != nil {
		respondError(w, r, err, "Failed to fetch sub-users")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// CountSubUsers returns the number of sub-users
func (sc *SubUserController) CountSubUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, vendorTimeout)
	defer cancel()
	count, err := sc.API.CountSubUsers(ctx)
	if err != nil {
		respondError(w, r, err, "Failed to fetch sub-user count")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

type createSubUserRequest struct {
	Name      string `json:"name" validate:"required"`
	ProxyPool string `json:"proxyPool" validate:"required,pooltype"`
	Threads   int    `json:"threads" validate:"omitempty,min=1"`
}

// CreateSubUser creates a sub-user at the vendor and mirrors it locally.
// A failed mirror write is logged, the vendor account stays.
func (sc *SubUserController) CreateSubUser(w http.ResponseWriter, r *http.Request) {
	var req createSubUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Failed to create user")
		return
	}

	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	su, err := sc.API.CreateSubUser(ctx, reseller.CreateSubUserRequest{
		Label:    strings.TrimSpace(req.Name),
		PoolType: req.ProxyPool,
		Threads:  req.Threads,
	})
	if err != nil {
		respondError(w, r, err, "Failed to create user")
		return
	}
	if err := sc.Mirror.Mirror(ctx, *su); err != nil {
		log.WithError(err).WithField("subuser_id", su.ID).Error("sub-user created but not mirrored")
	}
	utils.WriteJSON(w, http.StatusCreated, su)
}

// UpdateSubUser forwards a partial update such as label or threads
func (sc *SubUserController) UpdateSubUser(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	res, err := sc.API.UpdateSubUser(ctx, subUserID(r), fields)
	if err != nil {
		respondError(w, r, err, "Failed to update sub-user")
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// DeleteSubUser deletes a sub-user at the vendor and drops the mirror
func (sc *SubUserController) DeleteSubUser(w http.ResponseWriter, r *http.Request) {
	id := subUserID(r)
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "Sub-user ID is required")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	if err := sc.API.DeleteSubUser(ctx, id); err != nil {
		respondError(w, r, err, "Internal Server Error")
		return
	}
	if err := sc.Mirror.Remove(ctx, id.String()); err != nil {
		log.WithError(err).WithField("subuser_id", id).Error("sub-user deleted but mirror kept")
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Sub-user " + id.String() + " deleted successfully"})
}

// GetSubUserBalance returns the remaining traffic of one sub-user
func (sc *SubUserController) GetSubUserBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	balance, err := sc.API.SubUserBalance(ctx, subUserID(r))
	if err != nil {
		respondError(w, r, err, "Failed to fetch sub-user balance")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

// GetUsage returns one sub-user's usage buckets with their total
func (sc *SubUserController) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	stats, err := sc.API.UsageStats(ctx, subUserID(r), periodParam(r))
	if err != nil {
		respondError(w, r, err, "Failed to fetch usage")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"usage": stats.Usage, "total": stats.Total()})
}

func pageParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// GetUsageDetails pages through one sub-user's request log
func (sc *SubUserController) GetUsageDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	res, err := sc.API.UsageDetails(ctx, subUserID(r), periodParam(r),
		pageParam(r, "limit", reseller.PageLimit), pageParam(r, "offset", 0))
	if err != nil {
		respondError(w, r, err, "Failed to fetch usage details")
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// GetUsageErrors pages through one sub-user's failed requests
func (sc *SubUserController) GetUsageErrors(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	res, err := sc.API.UsageErrors(ctx, subUserID(r), periodParam(r),
		pageParam(r, "limit", reseller.PageLimit), pageParam(r, "offset", 0))
	if err != nil {
		respondError(w, r, err, "Failed to fetch usage errors")
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// GetProtocols returns the protocols a sub-user may connect with
func (sc *SubUserController) GetProtocols(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	protocols, err := sc.API.SupportedProtocols(ctx, subUserID(r))
	if err != nil {
		respondError(w, r, err, "Failed to fetch protocols")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string][]string{"protocols": protocols})
}

type setProtocolsRequest struct {
	Protocols []string `json:"protocols" validate:"required,min=1,dive,oneof=http https socks5"`
}

// SetProtocols replaces a sub-user's allowed protocols
func (sc *SubUserController) SetProtocols(w http.ResponseWriter, r *http.Request) {
	var req setProtocolsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Failed to set protocols")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	if err := sc.API.SetSupportedProtocols(ctx, subUserID(r), req.Protocols); err != nil {
		respondError(w, r, err, "Failed to set protocols")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// looseString accepts a JSON string or number
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	v := strings.TrimSpace(string(b))
	if v == "null" {
		*s = ""
		return nil
	}
	*s = looseString(strings.Trim(v, `"`))
	return nil
}

type setFiltersRequest struct {
	SubUserID        models.VendorID `json:"subuser_id" validate:"required"`
	Country          string          `json:"country" validate:"required"`
	State            string          `json:"state"`
	City             string          `json:"city"`
	ZipCode          string          `json:"zipCode"`
	ASN              looseString     `json:"asn"`
	AnonymousFilter  bool            `json:"anonymousFilter"`
	RotationInterval *int            `json:"rotationInterval"`
}

// poolParameters translates the form into the vendor's default pool parameters
func (req setFiltersRequest) poolParameters() (reseller.PoolParameters, error) {
	params := reseller.PoolParameters{
		Countries:       []string{req.Country},
		ExcludeASN:      []int{},
		AnonymousFilter: req.AnonymousFilter,
	}
	if asn := strings.TrimSpace(string(req.ASN)); asn != "" {
		n, err := strconv.Atoi(asn)
		if err != nil {
			return params, errBadRequest
		}
		params.ExcludeASN = []int{n}
	}
	if req.RotationInterval != nil && *req.RotationInterval != 0 {
		params.RotationInterval = req.RotationInterval
	}
	return params, nil
}

// SetFilters sets a sub-user's default targeting
func (sc *SubUserController) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req setFiltersRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Failed to set target filters")
		return
	}
	params, err := req.poolParameters()
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "ASN must be a number")
		return
	}
	if req.City != "" || req.ZipCode != "" {
		log.WithFields(log.Fields{"city": req.City, "zip": req.ZipCode}).Debug("city and zip targeting are not forwarded")
	}

	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	if err := sc.API.SetDefaultPoolParameters(ctx, req.SubUserID, params); err != nil {
		respondError(w, r, err, "Failed to set target filters")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
