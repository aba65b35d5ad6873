// Package store defines the remote document store surface the chat engine is
// built against. Documents live at slash-separated paths: an even number of
// segments addresses a document ("chats/k1"), an odd number a collection
// ("chats/k1/messages"). Implementations must deliver the full current result
// set on subscribe attach and again on every matching change.
package store

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("store: document not found")

// Sentinel write values, resolved by the store at apply time rather than on
// the client. Comparable so implementations can type-switch on them.

// ServerTimestamp marks a field to be set to the store's own clock.
type ServerTimestamp struct{}

// Increment marks a field for an atomic, race-free counter mutation.
type Increment struct {
	Delta int64
}

// FieldDelete removes a field from the document.
type FieldDelete struct{}

// ArrayUnion adds the value to an array field if not already present.
type ArrayUnion struct {
	Value any
}

// ArrayRemove removes all occurrences of the value from an array field.
type ArrayRemove struct {
	Value any
}

// Doc is a point-in-time copy of a stored document.
type Doc struct {
	ID   string // last path segment
	Path string
	Data map[string]any
}

type FilterOp string

const (
	OpEqual         FilterOp = "=="
	OpLessOrEqual   FilterOp = "<="
	OpGreaterThan   FilterOp = ">"
	OpArrayContains FilterOp = "array-contains"
)

type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query selects documents from one collection. OrderBy is a single field;
// Limit of zero means unbounded.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

type Snapshot []Doc

type OpKind int

const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

// Op is one entry of an atomic batch.
type Op struct {
	Kind   OpKind
	Path   string
	Fields map[string]any
}

type DocHandler func(doc Doc, exists bool)
type SnapshotHandler func(snap Snapshot)
type Unsubscribe func()

// Store is the point-operation, batch and subscription surface of the remote
// document store. Update field keys may be dotted paths ("typing.u1") that
// address values inside nested map fields.
type Store interface {
	Get(ctx context.Context, path string) (Doc, error)
	Set(ctx context.Context, path string, data map[string]any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error

	// Add creates a document with a store-assigned id and returns that id.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)

	// ApplyBatch applies all operations or none of them.
	ApplyBatch(ctx context.Context, ops []Op) error

	RunQuery(ctx context.Context, q Query) (Snapshot, error)

	// Subscribe delivers the current result set immediately and again on
	// every matching change, until the returned Unsubscribe is called.
	Subscribe(ctx context.Context, q Query, fn SnapshotHandler) (Unsubscribe, error)

	// SubscribeDoc is Subscribe for a single document; exists reports
	// whether the document currently exists.
	SubscribeDoc(ctx context.Context, path string, fn DocHandler) (Unsubscribe, error)
}

// DocID returns the last segment of a document path.
func DocID(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// ParentCollection returns the collection path a document belongs to.
func ParentCollection(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}
