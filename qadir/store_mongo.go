package qadir

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"log/slog"
	"time"
)

const (
	collectionProposals    = "proposals"
	collectionEvents       = "events"
	collectionHangarEmbeds = "hangar_embeds"
	collectionActivities   = "activities"
)

// mongoStore implements Store on a MongoDB database
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

func newMongoStore(
	ctx context.Context,
	uri string,
	dbName string,
	logger *slog.Logger,
) (*mongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}
	s := &mongoStore{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}
	if err = s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongodb: %w", err)
	}
	if err = s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating indexes: %w", err)
	}
	return s, nil
}

func (s *mongoStore) createIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collectionProposals: {
			{Keys: bson.D{{Key: "thread_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collectionEvents: {
			{Keys: bson.D{{Key: "thread_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "creator_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		collectionHangarEmbeds: {
			{Keys: bson.D{{Key: "message_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionActivities: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_time", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		names, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%s: %w", coll, err)
		}
		s.logger.DebugContext(ctx, "created indexes", "collection", coll, "indexes", names)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var v T
	err := coll.FindOne(ctx, filter).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func findAll[T any](
	ctx context.Context,
	coll *mongo.Collection,
	filter any,
	sortField string,
	sortOrder int,
) ([]*T, error) {
	cursor, err := coll.Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: sortField, Value: sortOrder}}),
	)
	if err != nil {
		return nil, err
	}
	var results []*T
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *mongoStore) replace(ctx context.Context, coll string, id string, doc any) error {
	res, err := s.db.Collection(coll).ReplaceOne(
		ctx,
		bson.M{"_id": id},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	s.logger.DebugContext(
		ctx,
		"replaced document",
		"collection", coll,
		"id", id,
		"matched", res.MatchedCount,
		"upserted", res.UpsertedCount,
	)
	return nil
}

func statusFilter[T ~string](status T) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

func (s *mongoStore) CreateProposal(ctx context.Context, p *Proposal) error {
	_, err := s.db.Collection(collectionProposals).InsertOne(ctx, p)
	return err
}

func (s *mongoStore) ProposalByThread(ctx context.Context, threadID string) (*Proposal, error) {
	return findOne[Proposal](ctx, s.db.Collection(collectionProposals), bson.M{"thread_id": threadID})
}

func (s *mongoStore) CountProposals(ctx context.Context) (int64, error) {
	return s.db.Collection(collectionProposals).CountDocuments(ctx, bson.M{})
}

func (s *mongoStore) SaveProposal(ctx context.Context, p *Proposal) error {
	return s.replace(ctx, collectionProposals, p.ID, p)
}

func (s *mongoStore) ActiveProposalsBefore(ctx context.Context, t time.Time) ([]*Proposal, error) {
	return findAll[Proposal](
		ctx,
		s.db.Collection(collectionProposals),
		bson.M{"status": ProposalStatusActive, "created_at": bson.M{"$lt": t}},
		"created_at",
		1,
	)
}

func (s *mongoStore) ListProposals(ctx context.Context, status ProposalStatus) ([]*Proposal, error) {
	return findAll[Proposal](
		ctx,
		s.db.Collection(collectionProposals),
		statusFilter(status),
		"created_at",
		-1,
	)
}

func (s *mongoStore) CreateEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Collection(collectionEvents).InsertOne(ctx, e)
	return err
}

func (s *mongoStore) EventByThread(ctx context.Context, threadID string) (*Event, error) {
	return findOne[Event](ctx, s.db.Collection(collectionEvents), bson.M{"thread_id": threadID})
}

func (s *mongoStore) SaveEvent(ctx context.Context, e *Event) error {
	return s.replace(ctx, collectionEvents, e.ID, e)
}

func (s *mongoStore) ListEvents(ctx context.Context, status EventStatus) ([]*Event, error) {
	return findAll[Event](
		ctx,
		s.db.Collection(collectionEvents),
		statusFilter(status),
		"created_at",
		1,
	)
}

func (s *mongoStore) EventsByCreator(ctx context.Context, creatorID string) ([]*Event, error) {
	return findAll[Event](
		ctx,
		s.db.Collection(collectionEvents),
		bson.M{"creator_id": creatorID},
		"created_at",
		1,
	)
}

func (s *mongoStore) CreateHangarEmbed(ctx context.Context, h *HangarEmbed) error {
	_, err := s.db.Collection(collectionHangarEmbeds).InsertOne(ctx, h)
	return err
}

func (s *mongoStore) ListHangarEmbeds(ctx context.Context) ([]*HangarEmbed, error) {
	return findAll[HangarEmbed](
		ctx,
		s.db.Collection(collectionHangarEmbeds),
		bson.M{},
		"created_at",
		1,
	)
}

func (s *mongoStore) DeleteHangarEmbed(ctx context.Context, messageID string) error {
	_, err := s.db.Collection(collectionHangarEmbeds).DeleteOne(
		ctx,
		bson.M{"message_id": messageID},
	)
	return err
}

func (s *mongoStore) CreateActivity(ctx context.Context, a *Activity) error {
	_, err := s.db.Collection(collectionActivities).InsertOne(ctx, a)
	return err
}

func (s *mongoStore) ListActivities(ctx context.Context, userID string) ([]*Activity, error) {
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	return findAll[Activity](
		ctx,
		s.db.Collection(collectionActivities),
		filter,
		"start_time",
		1,
	)
}
