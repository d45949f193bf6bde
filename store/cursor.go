package store

import (
	"encoding/base64"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"proxy-admin/models"
)

// cursorToken points at the last order of a page. CreatedAt keeps the stored
// BSON type so the next page can continue past the dated orders into the
// string-dated and undated ones.
type cursorToken struct {
	CreatedAt bson.RawValue `bson:"t"`
	ID        bson.RawValue `bson:"id"`
}

func encodeCursor(last models.Order) (string, error) {
	created := last.CreatedAtValue()
	if created.Type == 0 {
		created = bson.RawValue{Type: bsontype.Null}
	}
	b, err := bson.Marshal(cursorToken{CreatedAt: created, ID: last.DocumentID()})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeCursor(s string) (*cursorToken, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := bson.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if tok.ID.Type == 0 {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}
	switch tok.CreatedAt.Type {
	case bsontype.DateTime, bsontype.String, bsontype.Null:
	default:
		return nil, fmt.Errorf("%w: unsupported createdAt type %s", ErrInvalidCursor, tok.CreatedAt.Type)
	}
	return &tok, nil
}

// after selects the orders that sort strictly after the token under
// createdAt desc, _id desc. Comparisons only match values of the same BSON
// type, and dates sort above strings which sort above null or missing, so
// each lower type gets its own branch.
func (c cursorToken) after() bson.M {
	undated := bson.M{"createdAt": nil}
	switch c.CreatedAt.Type {
	case bsontype.DateTime:
		return bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$lt": c.CreatedAt}},
			bson.M{"createdAt": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
			bson.M{"createdAt": bson.M{"$type": "string"}},
			undated,
		}}
	case bsontype.String:
		return bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$lt": c.CreatedAt}},
			bson.M{"createdAt": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
			undated,
		}}
	default:
		return bson.M{"createdAt": nil, "_id": bson.M{"$lt": c.ID}}
	}
}
