package store

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrConflict      = errors.New("document was modified concurrently")
	ErrInvalidCursor = errors.New("invalid page cursor")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrPageFetch     = errors.New("failed to fetch page")
)

// idFilter matches an _id stored either as an ObjectID or as a plain string.
// Documents imported from the previous store kept their string ids.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}
