package history

import (
	"context"
	"errors"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/result"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoCollection   = "query_history"
	mongoDefaultDB    = "dbagent"
	mongoCloseTimeout = 5 * time.Second
)

// MongoStore writes entries to the query_history collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		database = mongoDefaultDB
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("session_created_at"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, collection: coll}, nil
}

func (ms *MongoStore) Append(ctx context.Context, e Entry) error {
	_, err := ms.collection.InsertOne(ctx, e)
	return err
}

func (ms *MongoStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := ms.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var newestFirst []Entry
	if err := cursor.All(ctx, &newestFirst); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		e := newestFirst[i]
		if e.ToolCalls == nil {
			e.ToolCalls = []result.ToolInvocation{}
		}
		out = append(out, e)
	}
	return out, nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
