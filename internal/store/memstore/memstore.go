// Package memstore is an in-memory document store with synchronous snapshot
// delivery. It backs the engine tests and the gateway demo mode; the real
// deployment uses the MongoDB implementation in internal/dbmongo.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"govibe/internal/store"
)

type docSub struct {
	path string
	fn   store.DocHandler
}

type querySub struct {
	q  store.Query
	fn store.SnapshotHandler
}

type Store struct {
	mu        sync.Mutex
	docs      map[string]map[string]any
	docSubs   map[int]*docSub
	querySubs map[int]*querySub
	nextSubID int
	nextDocID int
	lastStamp time.Time

	// Now is the clock used to resolve server timestamps. Tests may replace
	// it; resolved stamps are still forced strictly increasing.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		docs:      make(map[string]map[string]any),
		docSubs:   make(map[int]*docSub),
		querySubs: make(map[int]*querySub),
		Now:       time.Now,
	}
}

// serverNow returns a strictly increasing timestamp so that documents created
// back-to-back still order deterministically by creation time.
func (s *Store) serverNow() time.Time {
	now := s.Now()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

func (s *Store) Get(_ context.Context, path string) (store.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[path]
	if !ok {
		return store.Doc{}, store.ErrNotFound
	}
	return store.Doc{ID: store.DocID(path), Path: path, Data: deepCopy(data)}, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	return s.ApplyBatch(ctx, []store.Op{{Kind: store.OpSet, Path: path, Fields: data}})
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.ApplyBatch(ctx, []store.Op{{Kind: store.OpUpdate, Path: path, Fields: fields}})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.ApplyBatch(ctx, []store.Op{{Kind: store.OpDelete, Path: path}})
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	s.mu.Lock()
	s.nextDocID++
	id := fmt.Sprintf("srv-%06d", s.nextDocID)
	s.mu.Unlock()

	path := collection + "/" + id
	if err := s.Set(ctx, path, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ApplyBatch(_ context.Context, ops []store.Op) error {
	s.mu.Lock()

	// Validate before applying anything so a failing update cannot leave a
	// partially applied batch behind.
	willExist := make(map[string]bool)
	for _, op := range ops {
		switch op.Kind {
		case store.OpSet:
			willExist[op.Path] = true
		case store.OpUpdate:
			exists, checked := willExist[op.Path]
			if !checked {
				_, exists = s.docs[op.Path]
			}
			if !exists {
				s.mu.Unlock()
				return store.ErrNotFound
			}
		case store.OpDelete:
			willExist[op.Path] = false
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case store.OpSet:
			doc := make(map[string]any)
			for k, v := range op.Fields {
				setField(doc, k, s.resolve(doc, k, v))
			}
			s.docs[op.Path] = doc
		case store.OpUpdate:
			doc := s.docs[op.Path]
			for k, v := range op.Fields {
				if _, isDel := v.(store.FieldDelete); isDel {
					deleteField(doc, k)
					continue
				}
				setField(doc, k, s.resolve(doc, k, v))
			}
		case store.OpDelete:
			delete(s.docs, op.Path)
		}
	}

	docHandlers, queryHandlers := s.collectNotifications(ops)
	s.mu.Unlock()

	// Handlers run outside the lock so they may issue further writes.
	for _, fn := range docHandlers {
		fn()
	}
	for _, fn := range queryHandlers {
		fn()
	}
	return nil
}

// resolve turns sentinel write values into concrete ones.
func (s *Store) resolve(doc map[string]any, field string, v any) any {
	switch sv := v.(type) {
	case store.ServerTimestamp:
		return s.serverNow()
	case store.Increment:
		cur, _ := getField(doc, field)
		return toInt64(cur) + sv.Delta
	case store.ArrayUnion:
		arr := toArray(doc, field)
		for _, el := range arr {
			if reflect.DeepEqual(el, sv.Value) {
				return arr
			}
		}
		return append(arr, sv.Value)
	case store.ArrayRemove:
		arr := toArray(doc, field)
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			if !reflect.DeepEqual(el, sv.Value) {
				out = append(out, el)
			}
		}
		return out
	}
	return v
}

func (s *Store) collectNotifications(ops []store.Op) ([]func(), []func()) {
	touched := make(map[string]bool)
	for _, op := range ops {
		touched[op.Path] = true
	}

	// State is read back at delivery time, not captured here: a handler may
	// write again before queued deliveries run, and a stale snapshot arriving
	// last would stick. Re-reading matches the requery-per-event behavior of
	// the MongoDB implementation.
	var docFns []func()
	for _, sub := range s.docSubs {
		if !touched[sub.path] {
			continue
		}
		sub := sub
		docFns = append(docFns, func() {
			s.mu.Lock()
			data, exists := s.docs[sub.path]
			doc := store.Doc{ID: store.DocID(sub.path), Path: sub.path, Data: deepCopy(data)}
			s.mu.Unlock()
			sub.fn(doc, exists)
		})
	}

	var queryFns []func()
	for _, sub := range s.querySubs {
		hit := false
		for path := range touched {
			if store.ParentCollection(path) == sub.q.Collection {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		sub := sub
		queryFns = append(queryFns, func() {
			s.mu.Lock()
			snap := s.runQueryLocked(sub.q)
			s.mu.Unlock()
			sub.fn(snap)
		})
	}
	return docFns, queryFns
}

func (s *Store) RunQuery(_ context.Context, q store.Query) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runQueryLocked(q), nil
}

func (s *Store) runQueryLocked(q store.Query) store.Snapshot {
	var snap store.Snapshot
	for path, data := range s.docs {
		if store.ParentCollection(path) != q.Collection {
			continue
		}
		if !matches(data, q.Filters) {
			continue
		}
		snap = append(snap, store.Doc{ID: store.DocID(path), Path: path, Data: deepCopy(data)})
	}

	if q.OrderBy != "" {
		sort.SliceStable(snap, func(i, j int) bool {
			a, _ := getField(snap[i].Data, q.OrderBy)
			b, _ := getField(snap[j].Data, q.OrderBy)
			less := compare(a, b) < 0
			if q.Descending {
				return !less && compare(a, b) != 0
			}
			return less
		})
	} else {
		sort.SliceStable(snap, func(i, j int) bool { return snap[i].Path < snap[j].Path })
	}

	if q.Limit > 0 && len(snap) > q.Limit {
		snap = snap[:q.Limit]
	}
	return snap
}

func (s *Store) Subscribe(_ context.Context, q store.Query, fn store.SnapshotHandler) (store.Unsubscribe, error) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.querySubs[id] = &querySub{q: q, fn: fn}
	snap := s.runQueryLocked(q)
	s.mu.Unlock()

	fn(snap)

	return func() {
		s.mu.Lock()
		delete(s.querySubs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) SubscribeDoc(_ context.Context, path string, fn store.DocHandler) (store.Unsubscribe, error) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.docSubs[id] = &docSub{path: path, fn: fn}
	data, exists := s.docs[path]
	doc := store.Doc{ID: store.DocID(path), Path: path, Data: deepCopy(data)}
	s.mu.Unlock()

	fn(doc, exists)

	return func() {
		s.mu.Lock()
		delete(s.docSubs, id)
		s.mu.Unlock()
	}, nil
}

func matches(data map[string]any, filters []store.Filter) bool {
	for _, f := range filters {
		v, ok := getField(data, f.Field)
		switch f.Op {
		case store.OpEqual:
			if !ok || compare(v, f.Value) != 0 {
				return false
			}
		case store.OpLessOrEqual:
			if !ok || compare(v, f.Value) > 0 {
				return false
			}
		case store.OpGreaterThan:
			if !ok || compare(v, f.Value) <= 0 {
				return false
			}
		case store.OpArrayContains:
			arr, isArr := v.([]any)
			if !ok || !isArr {
				return false
			}
			found := false
			for _, el := range arr {
				if reflect.DeepEqual(el, f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two field values: times, numbers, strings, bools.
func compare(a, b any) int {
	if at, ok := a.(time.Time); ok {
		bt, _ := b.(time.Time)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		}
		return 0
	}
	if as, ok := a.(string); ok {
		bs, _ := b.(string)
		return strings.Compare(as, bs)
	}
	if ab, ok := a.(bool); ok {
		bb, _ := b.(bool)
		switch {
		case !ab && bb:
			return -1
		case ab && !bb:
			return 1
		}
		return 0
	}
	ai, bi := toInt64(a), toInt64(b)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	}
	return 0
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func toArray(doc map[string]any, field string) []any {
	cur, _ := getField(doc, field)
	if arr, ok := cur.([]any); ok {
		return arr
	}
	return nil
}

func getField(doc map[string]any, path string) (any, bool) {
	segs := strings.Split(path, ".")
	cur := doc
	for i, seg := range segs {
		if cur == nil {
			return nil, false
		}
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		cur, ok = v.(map[string]any)
		if !ok {
			return nil, false
		}
	}
	return nil, false
}

func setField(doc map[string]any, path string, v any) {
	segs := strings.Split(path, ".")
	cur := doc
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = v
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
}

func deleteField(doc map[string]any, path string) {
	segs := strings.Split(path, ".")
	cur := doc
	for i, seg := range segs {
		if i == len(segs)-1 {
			delete(cur, seg)
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func deepCopy(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = deepCopy(tv)
		case []any:
			arr := make([]any, len(tv))
			copy(arr, tv)
			out[k] = arr
		default:
			out[k] = v
		}
	}
	return out
}
