package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"proxy-admin/models"
)

func ns(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func orderDoc(id primitive.ObjectID, created time.Time, status string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "createdAt", Value: created},
		{Key: "status", Value: status},
		{Key: "paymentMethod", Value: "card"},
		{Key: "finalTotal", Value: 12.5},
	}
}

func TestOrderStorePage(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("full page yields a cursor, short page ends the listing", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		ids := []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()}

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			orderDoc(ids[0], base, "paid"),
			orderDoc(ids[1], base.Add(-time.Hour), "paid"),
		))
		first, err := s.Page(context.Background(), PageRequest{Size: 2})
		require.NoError(t, err)
		require.Len(t, first.Orders, 2)
		assert.Equal(t, ids[0].Hex(), first.Orders[0].ID)
		assert.Equal(t, 12.5, first.Orders[0].Amount)
		require.NotEmpty(t, first.NextCursor)

		tok, err := decodeCursor(first.NextCursor)
		require.NoError(t, err)
		assert.True(t, base.Add(-time.Hour).Equal(tok.CreatedAt.Time()))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			orderDoc(ids[2], base.Add(-2*time.Hour), "pending"),
		))
		second, err := s.Page(context.Background(), PageRequest{Size: 2, Cursor: first.NextCursor})
		require.NoError(t, err)
		require.Len(t, second.Orders, 1)
		assert.Equal(t, ids[2].Hex(), second.Orders[0].ID)
		assert.Empty(t, second.NextCursor)

		firstCmd := mt.GetStartedEvent()
		require.NotNil(t, firstCmd)
		assert.Equal(t, int64(2), firstCmd.Command.Lookup("limit").AsInt64())
		secondCmd := mt.GetStartedEvent()
		require.NotNil(t, secondCmd)
		_, hasOr := secondCmd.Command.Lookup("filter").Document().Lookup("$or").ArrayOK()
		assert.True(t, hasOr)
	})

	mt.Run("walks from dated orders into string-dated ones", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		dated := []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()}
		legacy := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			orderDoc(dated[0], base, "paid"),
			orderDoc(dated[1], base.Add(-time.Hour), "paid"),
		))
		first, err := s.Page(context.Background(), PageRequest{Size: 2})
		require.NoError(t, err)
		require.NotEmpty(t, first.NextCursor)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: legacy},
			{Key: "createdAt", Value: "2023-01-02T03:04:05.000Z"},
			{Key: "status", Value: "paid"},
		}))
		second, err := s.Page(context.Background(), PageRequest{Size: 2, Cursor: first.NextCursor})
		require.NoError(t, err)
		require.Len(t, second.Orders, 1)
		assert.Equal(t, legacy.Hex(), second.Orders[0].ID)
		assert.True(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC).Equal(second.Orders[0].CreatedAt))

		mt.GetStartedEvent()
		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		branches, err := evt.Command.Lookup("filter").Document().Lookup("$or").Array().Values()
		require.NoError(t, err)
		var continuesIntoStrings bool
		for _, b := range branches {
			if typ, ok := b.Document().Lookup("createdAt").DocumentOK(); ok {
				if v, ok := typ.Lookup("$type").StringValueOK(); ok && v == "string" {
					continuesIntoStrings = true
				}
			}
		}
		assert.True(t, continuesIntoStrings)
	})

	mt.Run("string-dated boundary keeps comparing strings", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "legacy-2"}, {Key: "createdAt", Value: "2023-01-03T00:00:00.000Z"}},
		))
		first, err := s.Page(context.Background(), PageRequest{Size: 1})
		require.NoError(t, err)
		require.NotEmpty(t, first.NextCursor)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		second, err := s.Page(context.Background(), PageRequest{Size: 1, Cursor: first.NextCursor})
		require.NoError(t, err)
		assert.Empty(t, second.Orders)
		assert.Empty(t, second.NextCursor)

		mt.GetStartedEvent()
		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		lower := evt.Command.Lookup("filter").Document().Lookup("$or").Array().Index(0).Value().
			Document().Lookup("createdAt").Document().Lookup("$lt")
		assert.Equal(t, "2023-01-03T00:00:00.000Z", lower.StringValue())
	})

	mt.Run("server error is a page fetch failure", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "boom"}))

		_, err := s.Page(context.Background(), PageRequest{})
		assert.ErrorIs(t, err, ErrPageFetch)
	})
}

func TestOrderStoreGetAndDelete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get missing order", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		_, err := s.Get(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	mt.Run("get normalizes", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: "pending"},
			{Key: "paymentStatus", Value: "paid"},
			{Key: "orderDetails", Value: bson.D{
				{Key: "proxyType", Value: "isp"},
				{Key: "quantity", Value: 3},
				{Key: "isSpecialProxy", Value: true},
			}},
		}))

		o, err := s.Get(context.Background(), id.Hex())
		require.NoError(t, err)
		assert.Equal(t, "paid", o.Status)
		assert.Equal(t, models.OrderKindSpecial, o.Kind)
		assert.Equal(t, 3, o.ProxyCount)
	})

	mt.Run("delete missing order", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		assert.ErrorIs(t, s.Delete(context.Background(), "abc"), ErrNotFound)
	})

	mt.Run("delete", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(t, s.Delete(context.Background(), "abc"))
	})
}

func TestOrderStoreFulfill(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	rec := models.FulfillmentRecord{
		ProxyDetails: map[string]models.ProxyDetails{"location1": {IP: "1.2.3.4", Port: "12323", Username: "u", Password: "p", Protocol: "http"}},
		FulfilledAt:  time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}

	mt.Run("applies when revision matches", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		require.NoError(t, s.Fulfill(context.Background(), "abc", 0, rec))

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		update := evt.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("u").Document()
		set := update.Lookup("$set").Document()
		assert.Equal(t, models.OrderStatusFulfilled, set.Lookup("status").StringValue())
		_, hasDetails := set.Lookup("proxyDetails").DocumentOK()
		assert.True(t, hasDetails)
	})

	mt.Run("stale revision conflicts", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)
		assert.ErrorIs(t, s.Fulfill(context.Background(), "abc", 3, rec), ErrConflict)
	})

	mt.Run("missing order", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)
		assert.ErrorIs(t, s.Fulfill(context.Background(), "abc", 0, rec), ErrNotFound)
	})
}

func TestOrderStoreFacetsAndStats(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("facets merge product types", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "values", Value: bson.A{"crypto", "card", ""}}),
			mtest.CreateSuccessResponse(bson.E{Key: "values", Value: bson.A{"residential", "isp"}}),
			mtest.CreateSuccessResponse(bson.E{Key: "values", Value: bson.A{"isp", "datacenter"}}),
		)
		f, err := s.Facets(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"card", "crypto"}, f.PaymentMethods)
		assert.Equal(t, []string{"datacenter", "isp", "residential"}, f.ProductTypes)
	})

	mt.Run("stats", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "revenue", Value: 99.5},
			{Key: "fulfilled", Value: int32(4)},
			{Key: "paid", Value: int32(3)},
		}))
		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 99.5, st.Revenue)
		assert.Equal(t, int64(4), st.Fulfilled)
		assert.Equal(t, int64(3), st.Paid)
	})

	mt.Run("stats on empty store", func(mt *mtest.T) {
		s := NewOrderStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))
		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, st.Revenue)
	})
}

func TestUserStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list fills missing emails", func(mt *mtest.T) {
		s := NewUserStore(mt.Coll)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: id}, {Key: "email", Value: "a@b.c"}},
			bson.D{{Key: "_id", Value: "uid-7"}},
		))
		clients, err := s.List(context.Background(), "a.b")
		require.NoError(t, err)
		require.Len(t, clients, 2)
		assert.Equal(t, id.Hex(), clients[0].ID)
		assert.Equal(t, "uid-7", clients[1].ID)
		assert.Equal(t, models.DefaultClientEmail, clients[1].Email)

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		pattern, _ := evt.Command.Lookup("filter").Document().Lookup("email").Document().Lookup("$regex").Regex()
		assert.Equal(t, `a\.b`, pattern)
	})

	mt.Run("touch unknown client", func(mt *mtest.T) {
		s := NewUserStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		assert.ErrorIs(t, s.TouchLastMessaged(context.Background(), "x", time.Now()), ErrNotFound)
	})
}

func TestSubUserStoreMirror(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts by vendor id", func(mt *mtest.T) {
		s := NewSubUserStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}))
		require.NoError(t, s.Mirror(context.Background(), models.SubUser{ID: "991", Label: "acme"}))

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		stmt := evt.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(t, "991", stmt.Lookup("q").Document().Lookup("vendorId").StringValue())
		assert.True(t, stmt.Lookup("upsert").Boolean())
	})
}
