package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"edv-core/internal/idcodec"
)

// MongoEngine is an Engine backed by a MongoDB database, one collection per
// EDV logical collection ("edv-storage-config", "edv-storage-secret",
// "edv-storage-doc", "edv-storage-chunk").
type MongoEngine struct {
	client *mongo.Client
	db     *mongo.Database
}

// DialMongoEngine connects to uri and pings it before returning.
func DialMongoEngine(ctx context.Context, uri, dbName string) (*MongoEngine, error) {
	if uri == "" {
		return nil, errors.New("store: mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return &MongoEngine{client: cli, db: cli.Database(dbName)}, nil
}

// Close disconnects the underlying client.
func (e *MongoEngine) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}

func (e *MongoEngine) Put(ctx context.Context, collection string, doc map[string]any) (PutResult, error) {
	id, _ := doc["_id"].(string)
	if id == "" {
		return PutResult{}, errors.New("store: Put requires _id")
	}
	coll := e.db.Collection(collection)
	oldRev, _ := doc["_rev"].(string)
	newRev, err := idcodec.RandomID()
	if err != nil {
		return PutResult{}, err
	}

	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	stored["_rev"] = newRev

	if oldRev == "" {
		if _, err := coll.InsertOne(ctx, stored); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return PutResult{}, ErrConflict
			}
			return PutResult{}, err
		}
		return PutResult{ID: id, Rev: newRev}, nil
	}

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "_rev": oldRev}, stored)
	if err != nil {
		return PutResult{}, err
	}
	if res.MatchedCount == 0 {
		return PutResult{}, ErrConflict
	}
	return PutResult{ID: id, Rev: newRev}, nil
}

func (e *MongoEngine) Post(ctx context.Context, collection string, doc map[string]any) (PutResult, error) {
	id, _ := doc["_id"].(string)
	if id == "" {
		generated, err := idcodec.RandomID()
		if err != nil {
			return PutResult{}, err
		}
		id = generated
	}
	fresh := bson.M{}
	for k, v := range doc {
		fresh[k] = v
	}
	fresh["_id"] = id
	delete(fresh, "_rev")
	return e.Put(ctx, collection, fresh)
}

func (e *MongoEngine) Find(ctx context.Context, collection string, opts FindOptions) ([]map[string]any, error) {
	coll := e.db.Collection(collection)
	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if len(opts.UseIndex) > 0 {
		findOpts.SetHint(opts.UseIndex[len(opts.UseIndex)-1])
	}

	filter := bson.M{}
	for k, v := range opts.Selector {
		filter[k] = v
	}

	cur, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []map[string]any
	for cur.Next(ctx) {
		var rec bson.M
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

func (e *MongoEngine) EnsureIndex(ctx context.Context, collection string, spec IndexSpec) error {
	coll := e.db.Collection(collection)
	keys := bson.D{}
	for _, f := range spec.Fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	idxOpts := options.Index().SetName(spec.Name)
	if len(spec.PartialExists) > 0 {
		partial := bson.M{}
		for _, f := range spec.PartialExists {
			partial[f] = bson.M{"$exists": true}
		}
		idxOpts.SetPartialFilterExpression(partial)
	}
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: idxOpts})
	return err
}

func (e *MongoEngine) Delete(ctx context.Context, collection, id string) error {
	coll := e.db.Collection(collection)
	_, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
