package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"proxy-admin/models"
)

// SubUserStore keeps a local copy of sub-users created through the console.
// The vendor remains the source of truth.
type SubUserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewSubUserStore(coll *mongo.Collection) *SubUserStore {
	return &SubUserStore{coll: coll, now: time.Now}
}

// Mirror upserts the sub-user keyed by its vendor id
func (s *SubUserStore) Mirror(ctx context.Context, su models.SubUser) error {
	su.MirroredAt = s.now().UTC()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"vendorId": su.ID.String()},
		bson.M{"$set": su},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mirror sub-user %s: %w", su.ID, err)
	}
	return nil
}

// Remove drops the mirrored copy. A missing copy is not an error.
func (s *SubUserStore) Remove(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"vendorId": id}); err != nil {
		return fmt.Errorf("remove sub-user %s: %w", id, err)
	}
	return nil
}
