package store

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const dayLayout = "2006-01-02"

// Filter narrows an order listing. Empty or "all" fields are ignored.
type Filter struct {
	Status        string `json:"status,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	ProductType   string `json:"productType,omitempty"`
	DateFrom      string `json:"dateFrom,omitempty"`
	DateTo        string `json:"dateTo,omitempty"`
}

func active(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, "all")
}

// predicates returns one condition per active field. Date bounds match BSON
// dates and, by prefix order, the UTC ISO strings older writers stored.
func (f Filter) predicates() ([]bson.M, error) {
	var preds []bson.M

	if active(f.Status) {
		status := strings.TrimSpace(f.Status)
		preds = append(preds, bson.M{"$or": bson.A{
			bson.M{"paymentStatus": status},
			bson.M{"paymentStatus": bson.M{"$in": bson.A{nil, ""}}, "status": status},
		}})
	}
	if active(f.PaymentMethod) {
		preds = append(preds, bson.M{"paymentMethod": strings.TrimSpace(f.PaymentMethod)})
	}
	if active(f.ProductType) {
		productType := strings.TrimSpace(f.ProductType)
		preds = append(preds, bson.M{"$or": bson.A{
			bson.M{"orderDetails.proxyType": productType},
			bson.M{"orderDetails.proxyType": bson.M{"$in": bson.A{nil, ""}}, "proxyType": productType},
		}})
	}
	if strings.TrimSpace(f.DateFrom) != "" {
		from, err := parseDay(f.DateFrom)
		if err != nil {
			return nil, fmt.Errorf("%w: dateFrom: %v", ErrInvalidFilter, err)
		}
		preds = append(preds, bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$gte": from}},
			bson.M{"createdAt": bson.M{"$gte": from.Format(dayLayout)}},
		}})
	}
	if strings.TrimSpace(f.DateTo) != "" {
		to, err := parseDay(f.DateTo)
		if err != nil {
			return nil, fmt.Errorf("%w: dateTo: %v", ErrInvalidFilter, err)
		}
		preds = append(preds, bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$lte": endOfDay(to)}},
			bson.M{"createdAt": bson.M{"$lt": to.AddDate(0, 0, 1).Format(dayLayout)}},
		}})
	}
	return preds, nil
}

// parseDay reads YYYY-MM-DD or an RFC 3339 timestamp and returns the start
// of that day in UTC
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// endOfDay is 23:59:59.999 of the day, the last instant a BSON date can hold
func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

func and(preds []bson.M) bson.M {
	switch len(preds) {
	case 0:
		return bson.M{}
	case 1:
		return preds[0]
	}
	all := make(bson.A, 0, len(preds))
	for _, p := range preds {
		all = append(all, p)
	}
	return bson.M{"$and": all}
}
