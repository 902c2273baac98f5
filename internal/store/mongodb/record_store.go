// Package mongodb implements the RecordStore contract against a remote
// MongoDB deployment. Merge-writes map onto a single update document
// ($set / $unset / $addToSet with upsert), range scans onto an indexed find
// over the geohash field, and subscriptions onto change streams (which
// require a replica-set deployment, as any managed cluster provides).
package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"aidmap/internal/domain/entities"
	"aidmap/internal/store"
)

const recordCollection = "users"

type RecordStore struct {
	coll *mongo.Collection
	log  *zap.Logger
}

var _ store.RecordStore = (*RecordStore)(nil)

func NewRecordStore(db *mongo.Database, log *zap.Logger) *RecordStore {
	return &RecordStore{
		coll: db.Collection(recordCollection),
		log:  log,
	}
}

// EnsureIndexes creates the geohash index the range scans depend on.
func (s *RecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "geohash", Value: 1}},
	})
	return err
}

func (s *RecordStore) Get(ctx context.Context, id string) (*entities.UserRecord, error) {
	var rec entities.UserRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RecordStore) GetByGeohashRange(ctx context.Context, start, end string) ([]*entities.UserRecord, error) {
	filter := bson.M{"geohash": bson.M{"$gte": start, "$lte": end}}
	opts := options.Find().SetSort(bson.D{{Key: "geohash", Value: 1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entities.UserRecord
	for cur.Next(ctx) {
		var rec entities.UserRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

// Merge translates the patch into one atomic update. UpdatedAt comes from
// $currentDate so the stamp is server-assigned and monotonic per document.
func (s *RecordStore) Merge(ctx context.Context, id string, patch entities.RecordPatch) error {
	sets := bson.M{}
	if patch.Name != nil {
		sets["name"] = *patch.Name
	}
	if patch.Mobile != nil {
		sets["mobile"] = *patch.Mobile
	}
	if patch.Lat != nil {
		sets["lat"] = *patch.Lat
	}
	if patch.Lng != nil {
		sets["lng"] = *patch.Lng
	}
	if patch.Geohash != nil {
		sets["geohash"] = *patch.Geohash
	}
	if patch.Situation != nil {
		sets["situation"] = *patch.Situation
	}
	if patch.Offer != nil {
		sets["offer"] = *patch.Offer
	}
	if patch.ResolvedAt != nil {
		sets["resolvedAt"] = *patch.ResolvedAt
	}

	update := bson.M{
		"$currentDate": bson.M{"updatedAt": true},
	}
	if len(sets) > 0 {
		update["$set"] = sets
	}
	if patch.DeleteOffer {
		update["$unset"] = bson.M{"offer": ""}
	}
	if patch.AddVolunteer != nil {
		update["$addToSet"] = bson.M{"volunteers": *patch.AddVolunteer}
	}

	_, err := s.coll.UpdateByID(ctx, id, update, options.Update().SetUpsert(true))
	return err
}

func (s *RecordStore) Delete(ctx context.Context, id string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

type changeEvent struct {
	OperationType string               `bson:"operationType"`
	FullDocument  *entities.UserRecord `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

// Subscribe opens a change stream filtered to one document and forwards
// every event to fn. The stream goroutine exits when the returned cancel
// func runs, the caller's context ends, or the stream breaks; a broken
// stream is logged, not retried — the subscriber re-subscribes manually.
func (s *RecordStore) Subscribe(ctx context.Context, id string, fn store.ChangeFunc) (func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
	stream, err := s.coll.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				s.log.Error("decoding change event", zap.String("id", id), zap.Error(err))
				continue
			}
			switch ev.OperationType {
			case "delete":
				fn(nil)
			default:
				if ev.FullDocument != nil {
					fn(ev.FullDocument)
				}
			}
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			s.log.Error("change stream ended", zap.String("id", id), zap.Error(err))
		}
	}()

	return cancel, nil
}
