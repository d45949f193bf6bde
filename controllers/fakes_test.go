package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"proxy-admin/models"
	"proxy-admin/reseller"
	"proxy-admin/store"
)

type fakeReseller struct {
	ResellerAPI // unimplemented methods panic

	balance   float64
	err       error
	created   reseller.CreateSubUserRequest
	deleted   models.VendorID
	params    reseller.PoolParameters
	paramsFor models.VendorID
	poolType  string
}

func (f *fakeReseller) Balance(context.Context) (float64, error) { return f.balance, f.err }

func (f *fakeReseller) Locations(_ context.Context, poolType string) (json.RawMessage, error) {
	f.poolType = poolType
	return json.RawMessage(`[{"country":"US"}]`), f.err
}

func (f *fakeReseller) CreateSubUser(_ context.Context, req reseller.CreateSubUserRequest) (*models.SubUser, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.SubUser{ID: "77", Label: req.Label, PoolType: req.PoolType, Threads: reseller.DefaultThreads}, nil
}

func (f *fakeReseller) DeleteSubUser(_ context.Context, id models.VendorID) error {
	f.deleted = id
	return f.err
}

func (f *fakeReseller) SetDefaultPoolParameters(_ context.Context, id models.VendorID, params reseller.PoolParameters) error {
	f.paramsFor, f.params = id, params
	return f.err
}

func (f *fakeReseller) TotalTraffic(context.Context, string) (float64, error) { return 6, f.err }

type fakeMirror struct {
	mirrored []models.SubUser
	removed  []string
	err      error
}

func (f *fakeMirror) Mirror(_ context.Context, su models.SubUser) error {
	f.mirrored = append(f.mirrored, su)
	return f.err
}

func (f *fakeMirror) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return f.err
}

type fakeOrderStore struct {
	mu      sync.Mutex
	lastReq store.PageRequest
	page    *store.Page
	orders  map[string]*models.Order
	err     error
	deleted []string
	records map[string]models.FulfillmentRecord
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	f := &fakeOrderStore{orders: map[string]*models.Order{}, records: map[string]models.FulfillmentRecord{}}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrderStore) Page(_ context.Context, req store.PageRequest) (*store.Page, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeOrderStore) Get(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) Delete(_ context.Context, id string) error {
	if _, ok := f.orders[id]; !ok {
		return store.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeOrderStore) Facets(context.Context) (*store.Facets, error) {
	return &store.Facets{PaymentMethods: []string{"card"}, ProductTypes: []string{"isp"}}, f.err
}

func (f *fakeOrderStore) Stats(context.Context) (*store.OrderStats, error) {
	return &store.OrderStats{Revenue: 10, Fulfilled: 2, Paid: 1}, f.err
}

func (f *fakeOrderStore) RecentFulfilled(context.Context, int) ([]models.Order, error) {
	return []models.Order{{ID: "o1"}}, f.err
}

func (f *fakeOrderStore) Fulfill(_ context.Context, id string, _ int64, rec models.FulfillmentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records[id] = rec
	return nil
}

type fakeClients struct {
	mu      sync.Mutex
	clients []models.Client
	touched []string
	search  string
}

func (f *fakeClients) List(_ context.Context, search string) ([]models.Client, error) {
	f.search = search
	return f.clients, nil
}

func (f *fakeClients) FindByIDs(_ context.Context, ids []string) ([]models.Client, error) {
	var out []models.Client
	for _, c := range f.clients {
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeClients) TouchLastMessaged(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	failTo   string
	delay    time.Duration
	inFlight int
	peak     int
}

func (f *fakeSender) SendEmail(to, _, _ string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if to == f.failTo {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}
