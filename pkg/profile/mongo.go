package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fbgate/pkg/config"
)

const (
	collectionName  = "sender_profiles"
	defaultDatabase = "fbgate"
)

// MongoRepository persists sender profiles in a MongoDB collection.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoRepository connects and pings before returning so a misconfigured
// URI fails at startup rather than on the first delivery.
func NewMongoRepository(ctx context.Context, cfg config.MongoConfig) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}

	return &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}, nil
}

func (m *MongoRepository) Create(ctx context.Context, record Record) (Record, error) {
	now := time.Now().UnixMilli()
	record.ID = primitive.NewObjectID()
	record.CreatedAt = now
	record.UpdatedAt = now

	if _, err := m.collection.InsertOne(ctx, record); err != nil {
		return Record{}, fmt.Errorf("insert profile: %w", err)
	}

	return record, nil
}

// FindBySender returns the most recently created profile for the sender.
func (m *MongoRepository) FindBySender(ctx context.Context, tenant, senderID string) (Record, error) {
	filter := bson.M{"tenant": tenant, "senderId": senderID}
	opts := options.FindOne().SetSort(bson.M{"createdAt": -1})

	var record Record
	err := m.collection.FindOne(ctx, filter, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("find profile: %w", err)
	}

	return record, nil
}

// Close disconnects the underlying client.
func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
