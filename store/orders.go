package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"proxy-admin/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PageRequest asks for one page of orders after Cursor
type PageRequest struct {
	Size   int
	Cursor string
	Filter Filter
}

// Page is one slice of the order listing. NextCursor is empty when the
// listing is exhausted.
type Page struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// Facets are the distinct values the order filters can take
type Facets struct {
	PaymentMethods []string `json:"paymentMethods"`
	ProductTypes   []string `json:"productTypes"`
}

// OrderStats summarises fulfilled orders for the dashboard
type OrderStats struct {
	Revenue   float64 `bson:"revenue" json:"revenue"`
	Fulfilled int64   `bson:"fulfilled" json:"fulfilledOrders"`
	Paid      int64   `bson:"paid" json:"paidOrders"`
}

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(coll *mongo.Collection) *OrderStore {
	return &OrderStore{coll: coll}
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// pageQuery combines the filter predicates with the cursor position
func pageQuery(req PageRequest) (bson.M, error) {
	preds, err := req.Filter.predicates()
	if err != nil {
		return nil, err
	}
	if req.Cursor != "" {
		tok, err := decodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		preds = append(preds, tok.after())
	}
	return and(preds), nil
}

// Page returns up to req.Size orders newest first, strictly after req.Cursor
func (s *OrderStore) Page(ctx context.Context, req PageRequest) (*Page, error) {
	size := clampPageSize(req.Size)
	query, err := pageQuery(req)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(size))

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		log.WithError(err).Error("order page query failed")
		return nil, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}
	var docs []models.OrderDocument
	if err := cur.All(ctx, &docs); err != nil {
		log.WithError(err).Error("order page decode failed")
		return nil, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}

	page := &Page{Orders: make([]models.Order, 0, len(docs))}
	for _, d := range docs {
		page.Orders = append(page.Orders, d.Normalize())
	}
	if len(page.Orders) == size {
		next, err := encodeCursor(page.Orders[len(page.Orders)-1])
		if err != nil {
			return nil, err
		}
		page.NextCursor = next
	}
	return page, nil
}

// Get loads a single order by id
func (s *OrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	var doc models.OrderDocument
	err := s.coll.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	o := doc.Normalize()
	return &o, nil
}

// Delete removes an order permanently
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Fulfill writes the proxy credentials onto the order and marks it
// fulfilled. The write only applies while the stored revision still equals
// revision; otherwise ErrConflict is returned and nothing changes.
func (s *OrderStore) Fulfill(ctx context.Context, id string, revision int64, rec models.FulfillmentRecord) error {
	revPred := bson.M{"revision": revision}
	if revision == 0 {
		revPred = bson.M{"$or": bson.A{
			bson.M{"revision": bson.M{"$exists": false}},
			bson.M{"revision": 0},
		}}
	}
	filter := bson.M{"$and": bson.A{idFilter(id), revPred}}

	set := bson.M{
		"status":      models.OrderStatusFulfilled,
		"fulfilledAt": rec.FulfilledAt,
	}
	if rec.ProxyList != nil {
		set["proxyList"] = rec.ProxyList
	} else {
		set["proxyDetails"] = rec.ProxyDetails
	}
	update := bson.M{"$set": set, "$inc": bson.M{"revision": 1}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("fulfill order %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("fulfill order %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// Facets lists the payment methods and product types present in the store
func (s *OrderStore) Facets(ctx context.Context) (*Facets, error) {
	methods, err := s.distinct(ctx, "paymentMethod")
	if err != nil {
		return nil, err
	}
	nested, err := s.distinct(ctx, "orderDetails.proxyType")
	if err != nil {
		return nil, err
	}
	flat, err := s.distinct(ctx, "proxyType")
	if err != nil {
		return nil, err
	}
	return &Facets{
		PaymentMethods: methods,
		ProductTypes:   mergeSorted(nested, flat),
	}, nil
}

func (s *OrderStore) distinct(ctx context.Context, field string) ([]string, error) {
	vals, err := s.coll.Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
			out = append(out, str)
		}
	}
	sort.Strings(out)
	return out, nil
}

func mergeSorted(lists ...[]string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, l := range lists {
		for _, v := range l {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Stats sums revenue over fulfilled orders
func (s *OrderStore) Stats(ctx context.Context) (*OrderStats, error) {
	amount := bson.M{"$ifNull": bson.A{
		"$totalAmount",
		bson.M{"$ifNull": bson.A{
			"$finalTotal",
			bson.M{"$ifNull": bson.A{"$totalPrice", bson.M{"$ifNull": bson.A{"$orderDetails.totalPrice", 0}}}},
		}},
	}}
	paid := bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$paymentStatus", "paid"}}, 1, 0}}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.OrderStatusFulfilled}}},
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"revenue":   bson.M{"$sum": amount},
			"fulfilled": bson.M{"$sum": 1},
			"paid":      bson.M{"$sum": paid},
		}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	var rows []OrderStats
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	if len(rows) == 0 {
		return &OrderStats{}, nil
	}
	return &rows[0], nil
}

// RecentFulfilled returns the n most recently created fulfilled orders
func (s *OrderStore) RecentFulfilled(ctx context.Context, n int) ([]models.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(n))
	cur, err := s.coll.Find(ctx, bson.M{"status": models.OrderStatusFulfilled}, opts)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	var docs []models.OrderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	orders := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		orders = append(orders, d.Normalize())
	}
	return orders, nil
}
