package projectstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type mongoCollection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Distinct(ctx context.Context, fieldName string, filter any, opts ...*options.DistinctOptions) ([]any, error)
}

type mongoDocument struct {
	Key       string    `bson:"_id"`
	Body      string    `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per record key.
type MongoStore struct {
	collection mongoCollection
	closeFn    func(context.Context) error
	logger     *zap.Logger
	// Now is injected for testability.
	Now func() time.Time
}

// OpenMongo connects, pings the primary and returns a store over the configured collection.
func OpenMongo(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "branchscope"
	}
	if cfg.Collection == "" {
		cfg.Collection = "project_records"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	return newMongoStore(collection, client.Disconnect, logger), nil
}

func newMongoStore(collection mongoCollection, closeFn func(context.Context) error, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if closeFn == nil {
		closeFn = func(context.Context) error { return nil }
	}
	return &MongoStore{
		collection: collection,
		closeFn:    closeFn,
		logger:     logger,
		Now:        nowOrDefault(nil),
	}
}

// Load returns the stored record for key.
func (s *MongoStore) Load(ctx context.Context, key string) (Record, bool) {
	now := nowOrDefault(s.Now)()

	var doc mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			s.logger.Warn("project record lookup failed; using defaults", zap.String("key", key), zap.Error(err))
		}
		return Default(now), false
	}

	record, err := decodeRecord([]byte(doc.Body), now)
	if err != nil {
		s.logger.Warn("project record unreadable; using defaults", zap.String("key", key), zap.Error(err))
		return Default(now), false
	}
	return record, true
}

// Save replaces or inserts the document for key.
func (s *MongoStore) Save(ctx context.Context, key string, record Record) error {
	if key == "" {
		return fmt.Errorf("record key is required")
	}
	body, err := encodeRecord(record)
	if err != nil {
		return err
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = nowOrDefault(s.Now)()
	}

	doc := mongoDocument{Key: key, Body: string(body), UpdatedAt: updatedAt.UTC()}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("save project record %s: %w", key, err)
	}
	return nil
}

// Delete removes the document for key. Missing keys are a no-op.
func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete project record %s: %w", key, err)
	}
	return nil
}

// Keys lists stored record keys in sorted order.
func (s *MongoStore) Keys(ctx context.Context) ([]string, error) {
	values, err := s.collection.Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list project records: %w", err)
	}
	keys := make([]string, 0, len(values))
	for _, value := range values {
		if key, ok := value.(string); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.closeFn(ctx)
}
