package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pos-service/internal/store"
)

var errAttemptsExhausted = errors.New("transaction attempts exhausted")

// Store maps each collection onto a MongoDB collection. Transactions need a
// replica set or sharded cluster.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	now         func() time.Time
	maxAttempts int
}

// NewStore connects to MongoDB and pings the primary
func NewStore(ctx context.Context, uri, database string, maxAttempts int) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	if maxAttempts < 1 {
		maxAttempts = store.DefaultMaxAttempts
	}
	return &Store{
		client:      client,
		db:          client.Database(database),
		now:         time.Now,
		maxAttempts: maxAttempts,
	}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) List(ctx context.Context, collection string, opts ...store.QueryOption) ([]store.Document, error) {
	q := store.BuildQuery(opts...)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := bson.M{}
	for _, f := range q.Filters {
		filter[f.Field] = bson.M{"$gte": f.Value}
	}

	sort := bson.D{{Key: "_id", Value: 1}}
	if q.OrderBy != "" {
		direction := 1
		if q.Descending {
			direction = -1
		}
		sort = bson.D{{Key: q.OrderBy, Value: direction}, {Key: "_id", Value: 1}}
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}

	docs := make([]store.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, toDocument(m))
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return s.get(ctx, collection, id)
}

func (s *Store) get(ctx context.Context, collection, id string) (store.Document, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, err
	}
	return toDocument(m), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return s.update(ctx, collection, id, fields, s.now())
}

func (s *Store) update(ctx context.Context, collection, id string, fields map[string]interface{}, now time.Time) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, idFilter(id), bson.M{"$set": resolve(fields, now)})
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if err := s.insert(ctx, collection, id, fields, s.now()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) insert(ctx context.Context, collection, id string, fields map[string]interface{}, now time.Time) error {
	doc := resolve(fields, now)
	doc["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, idFilter(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

type pendingWrite struct {
	collection string
	id         string
	fields     map[string]interface{}
	insert     bool
}

type mongoTx struct {
	s      *Store
	writes []pendingWrite
}

func (t *mongoTx) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if len(t.writes) > 0 {
		return store.Document{}, store.ErrReadAfterWrite
	}
	return t.s.get(ctx, collection, id)
}

func (t *mongoTx) Update(collection, id string, fields map[string]interface{}) {
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: fields})
}

func (t *mongoTx) Insert(collection string, fields map[string]interface{}) string {
	id := uuid.New().String()
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: fields, insert: true})
	return id
}

// RunTransaction runs fn inside a session transaction. The driver re-runs
// the callback on transient write conflicts; attempts are capped at
// maxAttempts.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	attempts := 0
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		attempts++
		if attempts > s.maxAttempts {
			return nil, errAttemptsExhausted
		}

		tx := &mongoTx{s: s}
		if err := fn(sc, tx); err != nil {
			return nil, err
		}

		now := s.now()
		for _, w := range tx.writes {
			var err error
			if w.insert {
				err = s.insert(sc, w.collection, w.id, w.fields, now)
			} else {
				err = s.update(sc, w.collection, w.id, w.fields, now)
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errAttemptsExhausted), isTransient(err):
		return fmt.Errorf("%w (%d)", store.ErrTxConflict, s.maxAttempts)
	default:
		return err
	}
}

func isTransient(err error) bool {
	var labeled mongo.LabeledError
	return errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError")
}

func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}
