package models

import (
	"strings"
	"time"
)

// VendorID is an identifier assigned by the reseller API. The API sends it
// as a number on some endpoints and as a string on others.
type VendorID string

// UnmarshalJSON accepts both quoted and bare identifiers
func (id *VendorID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	*id = VendorID(strings.Trim(s, `"`))
	return nil
}

func (id VendorID) String() string {
	return string(id)
}

// SubUser is a reseller sub-account holding a customer's traffic allocation
type SubUser struct {
	ID            VendorID  `bson:"vendorId" json:"id"`
	Label         string    `bson:"label" json:"label"`
	Login         string    `bson:"login" json:"login"`
	Password      string    `bson:"password" json:"password"`
	Balance       float64   `bson:"balance" json:"balance"` // remaining traffic
	BalanceFormat string    `bson:"balanceFormat,omitempty" json:"balance_format,omitempty"`
	Threads       int       `bson:"threads" json:"threads"`
	PoolType      string    `bson:"poolType" json:"pool_type"`
	MirroredAt    time.Time `bson:"mirroredAt" json:"-"`
}

// Pool types offered by the reseller
const (
	PoolResidential = "residential"
	PoolDatacenter  = "datacenter"
	PoolMobile      = "mobile"
)
