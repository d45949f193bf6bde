package reseller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"

	"proxy-admin/models"
)

const (
	// PageLimit is the page size used when walking a whole collection
	PageLimit = 100
	// maxPages bounds a full walk at maxPages*PageLimit sub-users
	maxPages = 1000

	// DefaultThreads is given to sub-users created from the dashboard
	DefaultThreads = 100
)

// SubUserPage is one page of the sub-user list
type SubUserPage struct {
	Items []models.SubUser `json:"items"`
	Total int              `json:"total"`
}

// CreateSubUserRequest is the vendor payload for a new sub-user
type CreateSubUserRequest struct {
	Label    string `json:"label"`
	PoolType string `json:"pool_type"`
	Threads  int    `json:"threads"`
}

// UsagePoint is one bucket of a usage statistic
type UsagePoint struct {
	Date    string  `json:"date,omitempty"`
	Traffic float64 `json:"traffic"`
}

// UsageStats is the usage of one sub-user over a period
type UsageStats struct {
	Usage []UsagePoint `json:"usage"`
}

// Total sums the traffic of every bucket
func (u UsageStats) Total() float64 {
	var sum float64
	for _, p := range u.Usage {
		sum += p.Traffic
	}
	return sum
}

// UsageTrend pairs a sub-user with its usage buckets
type UsageTrend struct {
	SubUserID models.VendorID `json:"subUserId"`
	Usage     []UsagePoint    `json:"usage"`
}

// PoolParameters are the default targeting parameters of a sub-user
type PoolParameters struct {
	Countries        []string `json:"countries,omitempty"`
	ExcludeCountries []string `json:"exclude_countries,omitempty"`
	ExcludeASN       []int    `json:"exclude_asn"`
	AnonymousFilter  bool     `json:"anonymous_filter"`
	RotationInterval *int     `json:"rotation_interval"`
}

func subUserParams(id models.VendorID) url.Values {
	return url.Values{"subuser_id": {id.String()}}
}

func pageParams(v url.Values, limit, offset int) url.Values {
	v.Set("limit", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(offset))
	return v
}

// Balance returns the reseller account balance
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var res struct {
		Balance float64 `json:"balance"`
	}
	if err := c.get(ctx, "/user/balance", nil, &res); err != nil {
		return 0, err
	}
	return res.Balance, nil
}

// ListSubUsers returns one page of sub-users
func (c *Client) ListSubUsers(ctx context.Context, limit, offset int) (*SubUserPage, error) {
	var page SubUserPage
	if err := c.get(ctx, "/sub-user/list", pageParams(url.Values{}, limit, offset), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllSubUsers walks the list page by page until a short or empty page.
// Pages are requested one after another.
func (c *Client) ListAllSubUsers(ctx context.Context) ([]models.SubUser, error) {
	all := []models.SubUser{}
	for page := 0; page < maxPages; page++ {
		res, err := c.ListSubUsers(ctx, PageLimit, page*PageLimit)
		if err != nil {
			return nil, fmt.Errorf("list sub-users at offset %d: %w", page*PageLimit, err)
		}
		all = append(all, res.Items...)
		if len(res.Items) < PageLimit {
			return all, nil
		}
	}
	log.WithField("max_pages", maxPages).Warn("Sub-user listing stopped at page bound")
	return all, nil
}

// CountSubUsers counts sub-users by walking the whole list
func (c *Client) CountSubUsers(ctx context.Context) (int, error) {
	all, err := c.ListAllSubUsers(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (c *Client) CreateSubUser(ctx context.Context, req CreateSubUserRequest) (*models.SubUser, error) {
	if req.Threads == 0 {
		req.Threads = DefaultThreads
	}
	var su models.SubUser
	if err := c.post(ctx, "/sub-user/create", req, &su); err != nil {
		return nil, err
	}
	if su.Label == "" {
		su.Label = req.Label
	}
	if su.PoolType == "" {
		su.PoolType = req.PoolType
	}
	return &su, nil
}

// UpdateSubUser sends the given fields as a partial update
func (c *Client) UpdateSubUser(ctx context.Context, id models.VendorID, fields map[string]interface{}) (json.RawMessage, error) {
	body := map[string]interface{}{"subuser_id": id.String()}
	for k, v := range fields {
		if k == "subuser_id" {
			continue
		}
		body[k] = v
	}
	var res json.RawMessage
	if err := c.post(ctx, "/sub-user/update", body, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) DeleteSubUser(ctx context.Context, id models.VendorID) error {
	return c.post(ctx, "/sub-user/delete", map[string]string{"subuser_id": id.String()}, nil)
}

// SubUserBalance returns the remaining traffic of a sub-user
func (c *Client) SubUserBalance(ctx context.Context, id models.VendorID) (float64, error) {
	var res struct {
		Balance float64 `json:"balance"`
	}
	if err := c.get(ctx, "/sub-user/balance/get", subUserParams(id), &res); err != nil {
		return 0, err
	}
	return res.Balance, nil
}

// AddBalance tops up a sub-user with traffic
func (c *Client) AddBalance(ctx context.Context, id models.VendorID, traffic float64) error {
	return c.post(ctx, "/sub-user/balance/add", map[string]interface{}{
		"subuser_id": id.String(),
		"traffic":    traffic,
	}, nil)
}

func (c *Client) UsageStats(ctx context.Context, id models.VendorID, period string) (*UsageStats, error) {
	params := subUserParams(id)
	params.Set("period", period)
	var stats UsageStats
	if err := c.get(ctx, "/sub-user/usage-stat/get", params, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) UsageDetails(ctx context.Context, id models.VendorID, period string, limit, offset int) (json.RawMessage, error) {
	params := subUserParams(id)
	params.Set("period", period)
	var res json.RawMessage
	if err := c.get(ctx, "/sub-user/usage-stat/detail", pageParams(params, limit, offset), &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) UsageErrors(ctx context.Context, id models.VendorID, period string, limit, offset int) (json.RawMessage, error) {
	params := subUserParams(id)
	params.Set("period", period)
	var res json.RawMessage
	if err := c.get(ctx, "/sub-user/usage-stat/errors", pageParams(params, limit, offset), &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) SupportedProtocols(ctx context.Context, id models.VendorID) ([]string, error) {
	var protocols []string
	if err := c.get(ctx, "/sub-user/supported-protocols/get", subUserParams(id), &protocols); err != nil {
		return nil, err
	}
	return protocols, nil
}

func (c *Client) SetSupportedProtocols(ctx context.Context, id models.VendorID, protocols []string) error {
	return c.post(ctx, "/sub-user/supported-protocols/set", map[string]interface{}{
		"subuser_id":          id.String(),
		"supported_protocols": protocols,
	}, nil)
}

// Locations lists the targetable locations of a pool
func (c *Client) Locations(ctx context.Context, poolType string) (json.RawMessage, error) {
	var res json.RawMessage
	if err := c.get(ctx, "/common/locations", url.Values{"pool_type": {poolType}}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) PoolStats(ctx context.Context, poolType string) (json.RawMessage, error) {
	var res json.RawMessage
	if err := c.get(ctx, "/common/pool_stats", url.Values{"pool_type": {poolType}}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) SetDefaultPoolParameters(ctx context.Context, id models.VendorID, params PoolParameters) error {
	if params.ExcludeASN == nil {
		params.ExcludeASN = []int{}
	}
	return c.post(ctx, "/sub-user/set-default-pool-parameters", map[string]interface{}{
		"subuser_id":              id.String(),
		"default_pool_parameters": params,
	}, nil)
}

// TotalTraffic sums the usage of every sub-user over period
func (c *Client) TotalTraffic(ctx context.Context, period string) (float64, error) {
	subUsers, err := c.ListAllSubUsers(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, su := range subUsers {
		stats, err := c.UsageStats(ctx, su.ID, period)
		if err != nil {
			return 0, fmt.Errorf("usage of sub-user %s: %w", su.ID, err)
		}
		total += stats.Total()
	}
	return total, nil
}

// UsageTrends collects the usage buckets of every sub-user over period
func (c *Client) UsageTrends(ctx context.Context, period string) ([]UsageTrend, error) {
	subUsers, err := c.ListAllSubUsers(ctx)
	if err != nil {
		return nil, err
	}
	trends := make([]UsageTrend, 0, len(subUsers))
	for _, su := range subUsers {
		stats, err := c.UsageStats(ctx, su.ID, period)
		if err != nil {
			return nil, fmt.Errorf("usage of sub-user %s: %w", su.ID, err)
		}
		trends = append(trends, UsageTrend{SubUserID: su.ID, Usage: stats.Usage})
	}
	return trends, nil
}
