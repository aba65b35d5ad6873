package dbmongo

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"govibe/internal/store"
)

// DocStore maps the store.Store surface onto a single MongoDB collection.
// Every logical document is one row: {_id: <path>, collection: <parent>,
// f: {user fields}}. Keeping user fields under "f" lets dotted update paths
// pass through unchanged and avoids clashes with the bookkeeping fields.
type DocStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger
}

func NewDocStore(mc *MongoClient, log zerolog.Logger) *DocStore {
	return &DocStore{
		client: mc.Client,
		coll:   mc.Database.Collection("docs"),
		log:    log,
	}
}

func (ds *DocStore) Get(ctx context.Context, path string) (store.Doc, error) {
	var raw bson.M
	err := ds.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Doc{}, store.ErrNotFound
	}
	if err != nil {
		return store.Doc{}, err
	}
	return docFromRaw(path, raw), nil
}

// Set overwrites the document at path. The delete and upsert are two server
// round trips; the engine only calls Set for paths it just found absent.
func (ds *DocStore) Set(ctx context.Context, path string, data map[string]any) error {
	if _, err := ds.coll.DeleteOne(ctx, bson.M{"_id": path}); err != nil {
		return err
	}
	update := buildUpdate(data)
	update["$set"].(bson.M)["collection"] = store.ParentCollection(path)
	_, err := ds.coll.UpdateOne(ctx, bson.M{"_id": path}, update, options.Update().SetUpsert(true))
	return err
}

func (ds *DocStore) Update(ctx context.Context, path string, fields map[string]any) error {
	res, err := ds.coll.UpdateOne(ctx, bson.M{"_id": path}, buildUpdate(fields))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (ds *DocStore) Delete(ctx context.Context, path string) error {
	_, err := ds.coll.DeleteOne(ctx, bson.M{"_id": path})
	return err
}

func (ds *DocStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := primitive.NewObjectID().Hex()
	if err := ds.Set(ctx, collection+"/"+id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (ds *DocStore) ApplyBatch(ctx context.Context, ops []store.Op) error {
	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case store.OpSet:
			update := buildUpdate(op.Fields)
			update["$set"].(bson.M)["collection"] = store.ParentCollection(op.Path)
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.Path}).
				SetUpdate(update).
				SetUpsert(true))
		case store.OpUpdate:
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.Path}).
				SetUpdate(buildUpdate(op.Fields)))
		case store.OpDelete:
			models = append(models, mongo.NewDeleteOneModel().
				SetFilter(bson.M{"_id": op.Path}))
		}
	}
	if len(models) == 0 {
		return nil
	}

	// All-or-nothing through a transaction; requires a replica set, which is
	// also what change streams need.
	session, err := ds.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return ds.coll.BulkWrite(sc, models, options.BulkWrite().SetOrdered(true))
	})
	return err
}

func (ds *DocStore) RunQuery(ctx context.Context, q store.Query) (store.Snapshot, error) {
	filter := bson.M{"collection": q.Collection}
	for _, f := range q.Filters {
		field := "f." + f.Field
		switch f.Op {
		case store.OpEqual, store.OpArrayContains:
			// Mongo equality on an array field matches membership.
			filter[field] = f.Value
		case store.OpLessOrEqual:
			filter[field] = bson.M{"$lte": f.Value}
		case store.OpGreaterThan:
			filter[field] = bson.M{"$gt": f.Value}
		}
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: "f." + q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := ds.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var snap store.Snapshot
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		path, _ := raw["_id"].(string)
		snap = append(snap, docFromRaw(path, raw))
	}
	return snap, cur.Err()
}

// Subscribe opens a change stream and re-runs the query on every event. The
// result set is small (windowed) so requerying beats delta bookkeeping.
func (ds *DocStore) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotHandler) (store.Unsubscribe, error) {
	snap, err := ds.RunQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	cs, err := ds.coll.Watch(streamCtx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, err
	}

	fn(snap)

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(streamCtx) {
			snap, err := ds.RunQuery(streamCtx, q)
			if err != nil {
				if streamCtx.Err() == nil {
					ds.log.Warn().Err(err).Str("collection", q.Collection).Msg("requery after change event failed")
				}
				continue
			}
			fn(snap)
		}
	}()

	return func() { cancel() }, nil
}

func (ds *DocStore) SubscribeDoc(ctx context.Context, path string, fn store.DocHandler) (store.Unsubscribe, error) {
	doc, err := ds.Get(ctx, path)
	exists := true
	if errors.Is(err, store.ErrNotFound) {
		doc = store.Doc{ID: store.DocID(path), Path: path}
		exists = false
	} else if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": path}}},
	}
	cs, err := ds.coll.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, err
	}

	fn(doc, exists)

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(streamCtx) {
			doc, err := ds.Get(streamCtx, path)
			if errors.Is(err, store.ErrNotFound) {
				fn(store.Doc{ID: store.DocID(path), Path: path}, false)
				continue
			}
			if err != nil {
				if streamCtx.Err() == nil {
					ds.log.Warn().Err(err).Str("path", path).Msg("reread after change event failed")
				}
				continue
			}
			fn(doc, true)
		}
	}()

	return func() { cancel() }, nil
}

// buildUpdate translates sentinel values into Mongo update operators.
func buildUpdate(fields map[string]any) bson.M {
	set := bson.M{}
	unset := bson.M{}
	inc := bson.M{}
	currentDate := bson.M{}
	addToSet := bson.M{}
	pull := bson.M{}

	for k, v := range fields {
		field := "f." + k
		switch sv := v.(type) {
		case store.ServerTimestamp:
			currentDate[field] = true
		case store.Increment:
			inc[field] = sv.Delta
		case store.FieldDelete:
			unset[field] = ""
		case store.ArrayUnion:
			addToSet[field] = sv.Value
		case store.ArrayRemove:
			pull[field] = sv.Value
		default:
			set[field] = v
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(currentDate) > 0 {
		update["$currentDate"] = currentDate
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	return update
}

func docFromRaw(path string, raw bson.M) store.Doc {
	data, _ := normalize(raw["f"]).(map[string]any)
	return store.Doc{
		ID:   store.DocID(path),
		Path: path,
		Data: data,
	}
}

// normalize converts driver types into the plain values the engine expects.
func normalize(v any) any {
	switch tv := v.(type) {
	case bson.M:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = normalize(val)
		}
		return out
	case primitive.A:
		out := make([]any, len(tv))
		for i, el := range tv {
			out[i] = normalize(el)
		}
		return out
	case primitive.DateTime:
		return tv.Time()
	case int32:
		return int64(tv)
	default:
		return v
	}
}

// interface guard
var _ store.Store = (*DocStore)(nil)
