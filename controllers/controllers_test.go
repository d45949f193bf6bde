package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/crypto/bcrypt"

	"proxy-admin/fulfillment"
	"proxy-admin/models"
	"proxy-admin/reseller"
	"proxy-admin/store"
	"proxy-admin/utils"
)

func request(method, target string, body interface{}, vars map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	jwt := utils.NewJWTManager("secret", time.Hour)
	ac := NewAuthController(models.Admin{Email: "admin@example.com", PasswordHash: string(hash)}, jwt)

	rec := httptest.NewRecorder()
	ac.Login(rec, request(http.MethodPost, "/api/auth/login", loginRequest{Email: "Admin@example.com", Password: "hunter2"}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	claims, err := jwt.ParseJWT(decodeBody(t, rec)["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, utils.RoleAdmin, claims.Role)

	rec = httptest.NewRecorder()
	ac.Login(rec, request(http.MethodPost, "/api/auth/login", loginRequest{Email: "admin@example.com", Password: "nope"}, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	ac.Login(rec, request(http.MethodPost, "/api/auth/login", loginRequest{Email: "not-an-email", Password: "x"}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fulfillment.ErrNoDraft, http.StatusNotFound},
		{store.ErrConflict, http.StatusConflict},
		{store.ErrInvalidCursor, http.StatusBadRequest},
		{fulfillment.ErrConfirmationRequired, http.StatusBadRequest},
		{&fulfillment.MismatchError{Have: 0, Want: 2}, http.StatusBadRequest},
		{reseller.ErrUnauthorized, http.StatusBadGateway},
		{&reseller.APIError{Status: 500}, http.StatusBadGateway},
		{store.ErrPageFetch, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context, *readpref.ReadPref) error { return p.err }

type fakeSession struct{ valid bool }

func (s fakeSession) Valid() bool          { return s.valid }
func (s fakeSession) ExpiresAt() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthController(fakePinger{}, fakeSession{valid: true}).GetHealth(rec, request(http.MethodGet, "/api/health", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["reseller"].(map[string]interface{})["sessionValid"])

	rec = httptest.NewRecorder()
	NewHealthController(fakePinger{err: errors.New("down")}, fakeSession{}).GetHealth(rec, request(http.MethodGet, "/api/health", nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResellerController(t *testing.T) {
	api := &fakeReseller{balance: 12.5}
	rc := NewResellerController(api)

	rec := httptest.NewRecorder()
	rc.GetBalance(rec, request(http.MethodGet, "/api/balance", nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"balance":12.5}`, rec.Body.String())

	rec = httptest.NewRecorder()
	rc.GetLocations(rec, request(http.MethodGet, "/api/pool/locations", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	rc.GetLocations(rec, request(http.MethodGet, "/api/pool/locations?pool_type=residential", nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "residential", api.poolType)

	rec = httptest.NewRecorder()
	rc.GetTotalTraffic(rec, request(http.MethodGet, "/api/traffic/total", nil, nil))
	assert.JSONEq(t, `{"total":6}`, rec.Body.String())

	api.err = reseller.ErrAuthentication
	rec = httptest.NewRecorder()
	rc.GetBalance(rec, request(http.MethodGet, "/api/balance", nil, nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCreateSubUser(t *testing.T) {
	api := &fakeReseller{}
	mirror := &fakeMirror{}
	sc := NewSubUserController(api, mirror)

	rec := httptest.NewRecorder()
	sc.CreateSubUser(rec, request(http.MethodPost, "/api/sub-users/create", map[string]string{"name": "acme", "proxyPool": "castle"}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, mirror.mirrored)

	rec = httptest.NewRecorder()
	sc.CreateSubUser(rec, request(http.MethodPost, "/api/sub-users/create", map[string]string{"name": " acme ", "proxyPool": "residential"}, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "acme", api.created.Label)
	assert.Equal(t, models.PoolResidential, api.created.PoolType)
	require.Len(t, mirror.mirrored, 1)
	assert.Equal(t, models.VendorID("77"), mirror.mirrored[0].ID)
}

func TestDeleteSubUserRemovesMirror(t *testing.T) {
	api := &fakeReseller{}
	mirror := &fakeMirror{}
	sc := NewSubUserController(api, mirror)

	rec := httptest.NewRecorder()
	sc.DeleteSubUser(rec, request(http.MethodDelete, "/api/sub-users/42", nil, map[string]string{"id": "42"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.VendorID("42"), api.deleted)
	assert.Equal(t, []string{"42"}, mirror.removed)
}

func TestSetFiltersTranslation(t *testing.T) {
	api := &fakeReseller{}
	sc := NewSubUserController(api, &fakeMirror{})

	rec := httptest.NewRecorder()
	sc.SetFilters(rec, request(http.MethodPost, "/api/sub-users/set-filters", map[string]interface{}{
		"subuser_id":       123,
		"country":          "us",
		"asn":              "7922",
		"anonymousFilter":  true,
		"rotationInterval": 300,
	}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.VendorID("123"), api.paramsFor)
	assert.Equal(t, []string{"us"}, api.params.Countries)
	assert.Equal(t, []int{7922}, api.params.ExcludeASN)
	assert.True(t, api.params.AnonymousFilter)
	require.NotNil(t, api.params.RotationInterval)
	assert.Equal(t, 300, *api.params.RotationInterval)

	rec = httptest.NewRecorder()
	sc.SetFilters(rec, request(http.MethodPost, "/api/sub-users/set-filters", map[string]interface{}{
		"subuser_id": "9", "country": "de", "asn": "",
	}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, api.params.ExcludeASN)
	assert.Nil(t, api.params.RotationInterval)
	assert.False(t, api.params.AnonymousFilter)
}

func TestGetOrdersPassesFilters(t *testing.T) {
	orders := newFakeOrderStore()
	orders.page = &store.Page{Orders: []models.Order{{ID: "a"}}, NextCursor: "next"}
	oc := NewOrderController(orders)

	rec := httptest.NewRecorder()
	oc.GetOrders(rec, request(http.MethodGet, "/api/orders?pageSize=20&cursor=abc&status=paid&paymentMethod=crypto&productType=isp&dateFrom=2024-01-01&dateTo=2024-01-31", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.PageRequest{
		Size:   20,
		Cursor: "abc",
		Filter: store.Filter{Status: "paid", PaymentMethod: "crypto", ProductType: "isp", DateFrom: "2024-01-01", DateTo: "2024-01-31"},
	}, orders.lastReq)
	assert.Equal(t, "next", decodeBody(t, rec)["nextCursor"])

	orders.err = store.ErrInvalidCursor
	rec = httptest.NewRecorder()
	oc.GetOrders(rec, request(http.MethodGet, "/api/orders?cursor=zzz", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	oc.GetOrders(rec, request(http.MethodGet, "/api/orders?pageSize=ten", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOrderRequiresConfirmation(t *testing.T) {
	orders := newFakeOrderStore(&models.Order{ID: "o1"})
	oc := NewOrderController(orders)

	rec := httptest.NewRecorder()
	oc.DeleteOrder(rec, request(http.MethodDelete, "/api/orders/o1", nil, map[string]string{"id": "o1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, orders.deleted)

	rec = httptest.NewRecorder()
	oc.DeleteOrder(rec, request(http.MethodDelete, "/api/orders/o1?confirm=true", nil, map[string]string{"id": "o1"}))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"o1"}, orders.deleted)

	rec = httptest.NewRecorder()
	oc.DeleteOrder(rec, request(http.MethodDelete, "/api/orders/o2?confirm=true", nil, map[string]string{"id": "o2"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFulfillmentSpecialFlow(t *testing.T) {
	orders := newFakeOrderStore(&models.Order{ID: "s1", Kind: models.OrderKindSpecial, ProxyCount: 2})
	fc := NewFulfillmentController(fulfillment.NewWorkflow(orders, fulfillment.NewDraftStore(), true))
	vars := map[string]string{"id": "s1"}

	rec := httptest.NewRecorder()
	fc.Start(rec, request(http.MethodPost, "/api/orders/s1/fulfillment", nil, vars))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["canSubmit"])

	rec = httptest.NewRecorder()
	fc.Submit(rec, request(http.MethodPost, "/api/orders/s1/fulfillment/submit", submitRequest{Acknowledged: true}, vars))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "The number of proxies (0) does not match the order quantity (2).", decodeBody(t, rec)["error"])

	rec = httptest.NewRecorder()
	fc.AddProxy(rec, request(http.MethodPost, "/api/orders/s1/fulfillment/proxies", fulfillment.ProxyEntry{Host: "h"}, vars))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, host := range []string{"a", "b"} {
		rec = httptest.NewRecorder()
		fc.AddProxy(rec, request(http.MethodPost, "/api/orders/s1/fulfillment/proxies",
			fulfillment.ProxyEntry{Host: host, Port: "12324", Username: "u", Password: "p"}, vars))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = httptest.NewRecorder()
	fc.Submit(rec, request(http.MethodPost, "/api/orders/s1/fulfillment/submit", submitRequest{}, vars))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	fc.Submit(rec, request(http.MethodPost, "/api/orders/s1/fulfillment/submit", submitRequest{Acknowledged: true}, vars))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"socks5://u:p@a:12324", "socks5://u:p@b:12324"}, orders.records["s1"].ProxyList)

	rec = httptest.NewRecorder()
	fc.Get(rec, request(http.MethodGet, "/api/orders/s1/fulfillment", nil, vars))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFulfillmentConflictKeepsDraft(t *testing.T) {
	order := &models.Order{ID: "o1", Kind: models.OrderKindStandard, Locations: []models.Location{{Country: "US"}}}
	order.ProxyDetails = map[string]models.ProxyDetails{"location1": {IP: "1.1.1.1", Port: "12323", Username: "u", Password: "p", Protocol: "http"}}
	orders := newFakeOrderStore(order)
	fc := NewFulfillmentController(fulfillment.NewWorkflow(orders, fulfillment.NewDraftStore(), false))
	vars := map[string]string{"id": "o1"}

	rec := httptest.NewRecorder()
	fc.Start(rec, request(http.MethodPost, "/api/orders/o1/fulfillment", nil, vars))
	require.Equal(t, http.StatusOK, rec.Code)

	orders.err = store.ErrConflict
	rec = httptest.NewRecorder()
	fc.Submit(rec, request(http.MethodPost, "/api/orders/o1/fulfillment/submit", submitRequest{}, vars))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	fc.Get(rec, request(http.MethodGet, "/api/orders/o1/fulfillment", nil, vars))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(fulfillment.StateError), decodeBody(t, rec)["state"])
}

func TestFulfillmentStartUnknownOrder(t *testing.T) {
	fc := NewFulfillmentController(fulfillment.NewWorkflow(newFakeOrderStore(), fulfillment.NewDraftStore(), true))
	rec := httptest.NewRecorder()
	fc.Start(rec, request(http.MethodPost, "/api/orders/nope/fulfillment", nil, map[string]string{"id": "nope"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageClients(t *testing.T) {
	clients := &fakeClients{clients: []models.Client{
		{ID: "1", Email: "a@example.com"},
		{ID: "2", Email: "b@example.com"},
		{ID: "3", Email: "c@example.com"},
	}}
	sender := &fakeSender{}
	cc := NewClientController(clients, sender)

	rec := httptest.NewRecorder()
	cc.MessageClients(rec, request(http.MethodPost, "/api/clients/message", messageRequest{ClientIDs: []string{"1", "2"}, Subject: "Hi", Body: "Hello"}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	sort.Strings(clients.touched)
	assert.Equal(t, []string{"1", "2"}, clients.touched)

	rec = httptest.NewRecorder()
	cc.MessageClients(rec, request(http.MethodPost, "/api/clients/message", messageRequest{ClientIDs: []string{"1"}}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageClientsReportsAggregateFailure(t *testing.T) {
	clients := &fakeClients{clients: []models.Client{
		{ID: "1", Email: "a@example.com"},
		{ID: "2", Email: "b@example.com"},
		{ID: "3", Email: "c@example.com"},
	}}
	sender := &fakeSender{failTo: "b@example.com"}
	cc := NewClientController(clients, sender)

	rec := httptest.NewRecorder()
	cc.MessageClients(rec, request(http.MethodPost, "/api/clients/message", messageRequest{ClientIDs: []string{"1", "2", "3"}, Subject: "Hi", Body: "Hello"}, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// the batch waits for every send and keeps what succeeded
	sort.Strings(clients.touched)
	assert.Equal(t, []string{"1", "3"}, clients.touched)
	assert.Len(t, sender.sent, 2)
}

func TestMessageClientsBoundsConcurrentSends(t *testing.T) {
	clients := &fakeClients{}
	var ids []string
	for i := 0; i < 3*messageConcurrency; i++ {
		id := strconv.Itoa(i)
		ids = append(ids, id)
		clients.clients = append(clients.clients, models.Client{ID: id, Email: "c" + id + "@example.com"})
	}
	sender := &fakeSender{delay: 5 * time.Millisecond}
	cc := NewClientController(clients, sender)

	rec := httptest.NewRecorder()
	cc.MessageClients(rec, request(http.MethodPost, "/api/clients/message", messageRequest{ClientIDs: ids, Subject: "Hi", Body: "Hello"}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sender.sent, len(ids))
	assert.LessOrEqual(t, sender.peak, messageConcurrency)
}

func TestMessageClientsSendsNothingAfterDeadline(t *testing.T) {
	clients := &fakeClients{clients: []models.Client{{ID: "1", Email: "a@example.com"}}}
	sender := &fakeSender{}
	cc := NewClientController(clients, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := request(http.MethodPost, "/api/clients/message", messageRequest{ClientIDs: []string{"1"}, Subject: "Hi", Body: "Hello"}, nil)

	rec := httptest.NewRecorder()
	cc.MessageClients(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, sender.sent)
	assert.Empty(t, clients.touched)
}

func TestGetClientsPassesSearch(t *testing.T) {
	clients := &fakeClients{clients: []models.Client{{ID: "1", Email: "a@example.com"}}}
	cc := NewClientController(clients, &fakeSender{})

	rec := httptest.NewRecorder()
	cc.GetClients(rec, request(http.MethodGet, "/api/clients?search=exam", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exam", clients.search)
	assert.Len(t, decodeBody(t, rec)["clients"], 1)
}

func TestDashboard(t *testing.T) {
	dc := NewDashboardController(newFakeOrderStore())
	rec := httptest.NewRecorder()
	dc.GetDashboard(rec, request(http.MethodGet, "/api/dashboard", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 10.0, body["revenue"])
	assert.Equal(t, 2.0, body["fulfilledOrders"])
	assert.Len(t, body["recentOrders"], 1)
}
