package fulfillment

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"proxy-admin/models"
)

type State string

const (
	StateLoading    State = "loading"
	StateLoaded     State = "loaded"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateFulfilled  State = "fulfilled"
	StateError      State = "error"
)

// Slot holds the credentials for one declared location of a standard order
type Slot struct {
	Key string `json:"key"`
	models.ProxyDetails
}

// Composer is the protocol and suggested port new special proxies start from
type Composer struct {
	Protocol string `json:"protocol"`
	Port     string `json:"port"`
}

// ProxyEntry is one proxy typed in by the operator for a special order
type ProxyEntry struct {
	Protocol string `json:"protocol,omitempty"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Draft is the server-side fulfillment form of one order
type Draft struct {
	OrderID     string           `json:"orderId"`
	Kind        models.OrderKind `json:"kind"`
	State       State            `json:"state"`
	Revision    int64            `json:"revision"`
	ProxyCount  int              `json:"proxyCount"`
	Slots       []Slot           `json:"slots,omitempty"`
	ProxyList   []string         `json:"proxyList,omitempty"`
	Composer    Composer         `json:"composer"`
	CustomPorts []string         `json:"customPorts"`
	LastError   string           `json:"lastError,omitempty"`
	CanSubmit   bool             `json:"canSubmit"`
	Mismatch    string           `json:"mismatch,omitempty"`
	TouchedAt   time.Time        `json:"touchedAt"`
}

// newDraft builds the editing form for order
func newDraft(order *models.Order) *Draft {
	d := &Draft{
		OrderID:     order.ID,
		Kind:        order.Kind,
		State:       StateLoaded,
		Revision:    order.Revision,
		ProxyCount:  order.ProxyCount,
		CustomPorts: []string{},
		Composer:    Composer{Protocol: ProtocolSOCKS5, Port: defaultPort(ProtocolSOCKS5)},
	}
	if order.IsSpecial() {
		d.ProxyList = append([]string{}, order.ProxyList...)
	} else {
		for i := range order.Locations {
			loc := order.Locations[i]
			slot := newSlot(i, &loc)
			// re-fulfillment starts from the credentials already issued
			if prev, ok := order.ProxyDetails[slot.Key]; ok {
				slot.ProxyDetails = prev
				slot.Location = &loc
			}
			d.Slots = append(d.Slots, slot)
		}
		if len(d.Slots) == 0 && order.Location != "" {
			d.Slots = append(d.Slots, newSlot(0, &models.Location{Country: order.Location}))
		}
	}
	d.State = StateEditing
	return d
}

func newSlot(i int, loc *models.Location) Slot {
	return Slot{
		Key: slotKey(i),
		ProxyDetails: models.ProxyDetails{
			Protocol: ProtocolHTTP,
			Port:     defaultPort(ProtocolHTTP),
			Location: loc,
		},
	}
}

func slotKey(i int) string {
	return fmt.Sprintf("location%d", i+1)
}

func (d *Draft) slot(key string) (*Slot, int, error) {
	for i := range d.Slots {
		if d.Slots[i].Key == key {
			return &d.Slots[i], i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrUnknownSlot, key)
}

// renumber restores the location1..N key sequence
func (d *Draft) renumber() {
	for i := range d.Slots {
		d.Slots[i].Key = slotKey(i)
	}
}

// Check reports why the draft cannot be submitted, or nil
func (d *Draft) Check() error {
	if d.Kind == models.OrderKindSpecial {
		if len(d.ProxyList) != d.ProxyCount {
			return &MismatchError{Have: len(d.ProxyList), Want: d.ProxyCount}
		}
		return nil
	}
	if len(d.Slots) == 0 {
		return fmt.Errorf("%w: order has no locations", ErrIncomplete)
	}
	var incomplete []string
	for _, s := range d.Slots {
		if !s.Complete() {
			incomplete = append(incomplete, s.Key)
		}
	}
	if len(incomplete) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(incomplete, ", "))
	}
	return nil
}

// refresh recomputes the derived submit flags
func (d *Draft) refresh() {
	err := d.Check()
	d.CanSubmit = err == nil
	d.Mismatch = ""
	if err != nil {
		d.Mismatch = err.Error()
	}
}

// availablePorts is the protocol pool followed by the custom ports
func (d *Draft) availablePorts(protocol string) []string {
	ports := append([]string{}, pool(protocol)...)
	return append(ports, d.CustomPorts...)
}

// record assembles what gets persisted onto the order
func (d *Draft) record() models.FulfillmentRecord {
	if d.Kind == models.OrderKindSpecial {
		return models.FulfillmentRecord{ProxyList: append([]string{}, d.ProxyList...)}
	}
	details := make(map[string]models.ProxyDetails, len(d.Slots))
	for _, s := range d.Slots {
		details[s.Key] = s.ProxyDetails
	}
	return models.FulfillmentRecord{ProxyDetails: details}
}

func (d *Draft) clone() *Draft {
	c := *d
	c.Slots = append([]Slot(nil), d.Slots...)
	for i := range c.Slots {
		if loc := c.Slots[i].Location; loc != nil {
			l := *loc
			c.Slots[i].Location = &l
		}
	}
	c.ProxyList = append([]string(nil), d.ProxyList...)
	c.CustomPorts = append([]string{}, d.CustomPorts...)
	return &c
}

// DefaultDraftTTL is how long an untouched draft is kept
const DefaultDraftTTL = 24 * time.Hour

// DraftStore keeps in-progress drafts keyed by order id. A draft nobody
// touched for ttl is dropped the next time the store is used.
type DraftStore struct {
	mu     sync.Mutex
	drafts map[string]*Draft
	ttl    time.Duration
	now    func() time.Time
}

func NewDraftStore() *DraftStore {
	return NewDraftStoreTTL(DefaultDraftTTL)
}

// NewDraftStoreTTL keeps drafts for ttl after their last change; 0 keeps
// them until discarded
func NewDraftStoreTTL(ttl time.Duration) *DraftStore {
	return &DraftStore{drafts: make(map[string]*Draft), ttl: ttl, now: time.Now}
}

func (s *DraftStore) expired(d *Draft) bool {
	return s.ttl > 0 && d.State != StateSubmitting && s.now().Sub(d.TouchedAt) >= s.ttl
}

// lookupLocked returns the live draft of orderID, dropping it if expired
func (s *DraftStore) lookupLocked(orderID string) (*Draft, bool) {
	d, ok := s.drafts[orderID]
	if !ok {
		return nil, false
	}
	if s.expired(d) {
		delete(s.drafts, orderID)
		return nil, false
	}
	return d, true
}

func (s *DraftStore) evictLocked() {
	for id, d := range s.drafts {
		if s.expired(d) {
			delete(s.drafts, id)
		}
	}
}

// with runs fn on the draft of orderID under the store lock and returns a
// snapshot taken after fn
func (s *DraftStore) with(orderID string, fn func(*Draft) error) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.lookupLocked(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDraft, orderID)
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.TouchedAt = s.now()
	d.refresh()
	return d.clone(), nil
}

// putIfAbsent stores d unless a draft already exists, and returns whichever
// draft is kept. Expired drafts of other orders are swept here.
func (s *DraftStore) putIfAbsent(d *Draft) *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	if existing, ok := s.drafts[d.OrderID]; ok {
		return existing.clone()
	}
	d.TouchedAt = s.now()
	d.refresh()
	s.drafts[d.OrderID] = d
	return d.clone()
}

func (s *DraftStore) get(orderID string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.lookupLocked(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDraft, orderID)
	}
	return d.clone(), nil
}

func (s *DraftStore) delete(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookupLocked(orderID)
	delete(s.drafts, orderID)
	return ok
}

// Len is the number of live drafts
func (s *DraftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	return len(s.drafts)
}
