package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// OrderStatusFulfilled is written onto an order once proxies are attached
const OrderStatusFulfilled = "fulfilled"

// OrderKind tells which shape an order was stored in
type OrderKind string

const (
	OrderKindStandard OrderKind = "standard" // nested orderDetails with locations
	OrderKindSpecial  OrderKind = "special"  // flat proxy list of proxyCount entries
	OrderKindLegacy   OrderKind = "legacy"   // flat top-level fields
)

// Location is one geo target declared on an order
type Location struct {
	Country string `bson:"country" json:"country"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	ZipCode string `bson:"zipcode,omitempty" json:"zipcode,omitempty"`
}

// Tier is the traffic package picked at checkout
type Tier struct {
	GB       float64 `bson:"gb" json:"gb"`
	Price    float64 `bson:"price" json:"price"`
	Discount string  `bson:"discount,omitempty" json:"discount,omitempty"`
}

// ProxyDetails holds the credentials issued for one location
type ProxyDetails struct {
	IP       string    `bson:"ip" json:"ip"`
	Port     string    `bson:"port" json:"port"`
	Username string    `bson:"username" json:"username"`
	Password string    `bson:"password" json:"password"`
	Protocol string    `bson:"protocol" json:"protocol"` // "http", "https" or "socks5"
	Location *Location `bson:"location,omitempty" json:"location,omitempty"`
}

// Complete reports whether every credential field is filled in
func (p ProxyDetails) Complete() bool {
	return p.IP != "" && p.Port != "" && p.Username != "" && p.Password != ""
}

// OrderDetails is the nested block written by the card checkout
type OrderDetails struct {
	ProxyType      string     `bson:"proxyType"`
	IsSpecialProxy bool       `bson:"isSpecialProxy"`
	Location       string     `bson:"location,omitempty"`
	Duration       string     `bson:"duration,omitempty"`
	Quantity       int        `bson:"quantity,omitempty"`
	GBAmount       float64    `bson:"gbAmount,omitempty"`
	AdditionalGB   float64    `bson:"additionalGb,omitempty"`
	SelectedTier   *Tier      `bson:"selectedTier,omitempty"`
	PaymentOption  string     `bson:"paymentOption,omitempty"`
	TotalPrice     *float64   `bson:"totalPrice,omitempty"`
	Locations      []Location `bson:"locations,omitempty"`
}

// OrderDocument is an order exactly as found in the orders collection.
// Older checkouts wrote flat fields, newer ones nest them under orderDetails,
// and the amount has been stored under three different names.
type OrderDocument struct {
	ID             bson.RawValue `bson:"_id"`
	Status         string        `bson:"status"`
	PaymentStatus  string        `bson:"paymentStatus,omitempty"`
	CreatedAt      bson.RawValue `bson:"createdAt"`
	PaymentMethod  string        `bson:"paymentMethod"`
	TotalAmount    *float64      `bson:"totalAmount,omitempty"`
	FinalTotal     *float64      `bson:"finalTotal,omitempty"`
	TotalPrice     *float64      `bson:"totalPrice,omitempty"`
	OrderDetails   *OrderDetails `bson:"orderDetails,omitempty"`
	ProxyType      string        `bson:"proxyType,omitempty"`
	Location       string        `bson:"location,omitempty"`
	Locations      []Location    `bson:"locations,omitempty"`
	Duration       string        `bson:"duration,omitempty"`
	ProxyCount     int           `bson:"proxyCount,omitempty"`
	IsSpecialProxy bool          `bson:"isSpecialProxy,omitempty"`
	GBAmount       float64       `bson:"gbAmount,omitempty"`
	SelectedTier   *Tier         `bson:"selectedTier,omitempty"`
	PaymentOption  string        `bson:"paymentOption,omitempty"`
	ReferredBy     string        `bson:"referredBy,omitempty"`

	ProxyDetails map[string]ProxyDetails `bson:"proxyDetails,omitempty"`
	ProxyList    []string                `bson:"proxyList,omitempty"`
	FulfilledAt  bson.RawValue           `bson:"fulfilledAt,omitempty"`
	Revision     int64                   `bson:"revision,omitempty"`
}

// Order is the canonical order every handler works with
type Order struct {
	ID            string                  `json:"id"`
	Kind          OrderKind               `json:"kind"`
	Status        string                  `json:"status"`
	RawStatus     string                  `json:"rawStatus"`
	CreatedAt     time.Time               `json:"createdAt"`
	PaymentMethod string                  `json:"paymentMethod"`
	ProductType   string                  `json:"productType"`
	Amount        float64                 `json:"totalAmount"`
	GBAmount      float64                 `json:"gbAmount,omitempty"`
	Tier          *Tier                   `json:"tier,omitempty"`
	Location      string                  `json:"location,omitempty"`
	Locations     []Location              `json:"locations,omitempty"`
	Duration      string                  `json:"duration,omitempty"`
	PaymentOption string                  `json:"paymentOption,omitempty"`
	ProxyCount    int                     `json:"proxyCount,omitempty"`
	ProxyDetails  map[string]ProxyDetails `json:"proxyDetails,omitempty"`
	ProxyList     []string                `json:"proxyList,omitempty"`
	FulfilledAt   *time.Time              `json:"fulfilledAt,omitempty"`
	Revision      int64                   `json:"revision"`

	docID      bson.RawValue
	createdRaw bson.RawValue
}

// DocumentID returns the _id in its stored BSON form
func (o Order) DocumentID() bson.RawValue {
	return o.docID
}

// CreatedAtValue returns createdAt in its stored BSON form, which older
// writers left as an ISO string
func (o Order) CreatedAtValue() bson.RawValue {
	return o.createdRaw
}

// IsSpecial reports whether the order is fulfilled with a flat proxy list
func (o Order) IsSpecial() bool {
	return o.Kind == OrderKindSpecial
}

// Normalize folds the stored shapes into one Order
func (d OrderDocument) Normalize() Order {
	o := Order{
		ID:            idString(d.ID),
		RawStatus:     d.Status,
		Status:        d.Status,
		CreatedAt:     decodeTime(d.CreatedAt),
		PaymentMethod: d.PaymentMethod,
		ProductType:   d.ProxyType,
		Location:      d.Location,
		Locations:     d.Locations,
		Duration:      d.Duration,
		ProxyCount:    d.ProxyCount,
		GBAmount:      d.GBAmount,
		Tier:          d.SelectedTier,
		PaymentOption: d.PaymentOption,
		ProxyDetails:  d.ProxyDetails,
		ProxyList:     d.ProxyList,
		Revision:      d.Revision,
		docID:         d.ID,
		createdRaw:    d.CreatedAt,
	}
	if d.PaymentStatus != "" {
		o.Status = d.PaymentStatus
	}
	if o.Status == "" {
		o.Status = "unknown"
	}
	if t := decodeTime(d.FulfilledAt); !t.IsZero() {
		o.FulfilledAt = &t
	}

	special := d.IsSpecialProxy
	if det := d.OrderDetails; det != nil {
		special = special || det.IsSpecialProxy
		if det.ProxyType != "" {
			o.ProductType = det.ProxyType
		}
		if len(det.Locations) > 0 {
			o.Locations = det.Locations
		}
		if det.Location != "" {
			o.Location = det.Location
		}
		if det.Duration != "" {
			o.Duration = det.Duration
		}
		if o.ProxyCount == 0 {
			o.ProxyCount = det.Quantity
		}
		if det.GBAmount != 0 {
			o.GBAmount = det.GBAmount
		}
		if det.SelectedTier != nil {
			o.Tier = det.SelectedTier
		}
		if det.PaymentOption != "" {
			o.PaymentOption = det.PaymentOption
		}
	}

	switch {
	case special:
		o.Kind = OrderKindSpecial
	case d.OrderDetails != nil:
		o.Kind = OrderKindStandard
	default:
		o.Kind = OrderKindLegacy
	}

	o.Amount = firstAmount(d.TotalAmount, d.FinalTotal, d.TotalPrice)
	if o.Amount == 0 && d.OrderDetails != nil && d.OrderDetails.TotalPrice != nil {
		o.Amount = *d.OrderDetails.TotalPrice
	}
	return o
}

// FulfillmentRecord is what gets written onto an order when it is fulfilled
type FulfillmentRecord struct {
	ProxyDetails map[string]ProxyDetails
	ProxyList    []string
	FulfilledAt  time.Time
}

func firstAmount(amounts ...*float64) float64 {
	for _, a := range amounts {
		if a != nil {
			return *a
		}
	}
	return 0
}

func idString(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return ""
}

// decodeTime accepts BSON dates as well as the ISO strings older writers used
func decodeTime(v bson.RawValue) time.Time {
	if t, ok := v.TimeOK(); ok {
		return t.UTC()
	}
	if s, ok := v.StringValueOK(); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
