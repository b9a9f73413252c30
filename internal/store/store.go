package store

import "context"

// Collections used by the queue core.
const (
	CollectionEntries   = "entries"
	CollectionHistory   = "history"
	CollectionLocations = "locations"
)

type Document = map[string]interface{}

type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpIn  Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

func Where(field string, op Op, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

type Order struct {
	Field      string
	Descending bool
}

// Query selects documents matching every filter. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy *Order
	Limit   int
}

// Sequence names the numeric counter field a batch of documents is
// numbered from.
type Sequence struct {
	Collection string
	ID         string
	Field      string
}

type SequencedDocument struct {
	ID  string
	Doc Document
}

// DocumentStore is the collection-scoped document database the queue core
// reads and writes through. Implementations mark driver failures with
// ErrStoreFailure.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	Query(ctx context.Context, collection string, query Query) ([]Document, error)
	// Set replaces the document, or merges its top-level fields into an
	// existing one when merge is true.
	Set(ctx context.Context, collection, id string, doc Document, merge bool) error
	// Update merges partial into an existing document and fails with
	// ErrNotFound when it is absent.
	Update(ctx context.Context, collection, id string, partial Document) error
	Delete(ctx context.Context, collection, id string) error
	// Increment atomically adds delta to a numeric field, creating the
	// document when missing, and returns the new value.
	Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error)
	// InsertSequenced numbers docs consecutively after the current value of
	// seq, stores each one in collection with its number in field, and
	// advances seq by len(docs). Either every document is written and the
	// counter advanced, or nothing changes. It returns the first number.
	InsertSequenced(ctx context.Context, seq Sequence, collection, field string, docs []SequencedDocument) (int64, error)
}
