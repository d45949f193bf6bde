package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"proxy-admin/models"
)

// UserStore reads the storefront's customer accounts
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(coll *mongo.Collection) *UserStore {
	return &UserStore{coll: coll}
}

// clientDoc keeps the raw _id so both ObjectIDs and string ids decode
type clientDoc struct {
	ID           bson.RawValue `bson:"_id"`
	Email        string        `bson:"email"`
	CreatedAt    *time.Time    `bson:"createdAt,omitempty"`
	LastMessaged *time.Time    `bson:"lastMessaged,omitempty"`
}

func (d clientDoc) client() models.Client {
	c := models.Client{Email: d.Email, CreatedAt: d.CreatedAt, LastMessaged: d.LastMessaged}
	if oid, ok := d.ID.ObjectIDOK(); ok {
		c.ID = oid.Hex()
	} else if s, ok := d.ID.StringValueOK(); ok {
		c.ID = s
	}
	if strings.TrimSpace(c.Email) == "" {
		c.Email = models.DefaultClientEmail
	}
	return c
}

// List returns clients whose email contains search, case-insensitively
func (s *UserStore) List(ctx context.Context, search string) ([]models.Client, error) {
	filter := bson.M{}
	if q := strings.TrimSpace(search); q != "" {
		filter["email"] = bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}}
	}
	return s.find(ctx, filter)
}

// FindByIDs loads the given clients, silently skipping unknown ids
func (s *UserStore) FindByIDs(ctx context.Context, ids []string) ([]models.Client, error) {
	in := bson.A{}
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			in = append(in, oid)
		}
		in = append(in, id)
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": in}})
}

func (s *UserStore) find(ctx context.Context, filter bson.M) ([]models.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	var docs []clientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	clients := make([]models.Client, 0, len(docs))
	for _, d := range docs {
		clients = append(clients, d.client())
	}
	return clients, nil
}

// TouchLastMessaged records when a client was last emailed
func (s *UserStore) TouchLastMessaged(ctx context.Context, id string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx, idFilter(id), bson.M{"$set": bson.M{"lastMessaged": at}})
	if err != nil {
		return fmt.Errorf("update client %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
