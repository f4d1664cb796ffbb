// Package kvtable defines the abstract contract the storage and query
// engine uses to talk to a hosted hash+range key-value store (spec §4.2,
// §6). Concrete implementations live in sibling packages: dynamodb (the
// hosted backend) and memkv (an in-process backend for tests and local
// development).
package kvtable

import "context"

// TableStatus mirrors the lifecycle states a hash+range table can report.
type TableStatus string

const (
	StatusCreating TableStatus = "CREATING"
	StatusActive   TableStatus = "ACTIVE"
	StatusDeleting TableStatus = "DELETING"
	StatusUpdating TableStatus = "UPDATING"
)

// AttrType is the wire type of a key attribute.
type AttrType string

const (
	AttrString AttrType = "S"
	AttrNumber AttrType = "N"
)

// KeySchema names and types one half of a table's primary key.
type KeySchema struct {
	Name string
	Type AttrType
}

// Item is a row's attribute set, keyed by attribute name. Values are
// string, int64, float64, or []byte.
type Item map[string]interface{}

// Throughput is a table's provisioned read/write capacity.
type Throughput struct {
	Read  int64
	Write int64
}

// RangeBetween bounds a range-key scan to [Start, End] inclusive.
type RangeBetween struct {
	Start interface{}
	End   interface{}
}

// ItemKey identifies a single row for DeleteItem. Names are carried
// alongside values for the same reason QueryInput carries them: backends
// that build attribute-name expressions need the table's declared key
// attribute names, not just the values.
type ItemKey struct {
	HashKeyName  string
	HashKey      interface{}
	RangeKeyName string
	RangeKey     interface{}
}

// QueryInput parameterizes a Query call. HashKeyName/RangeKeyName name the
// table's declared key attributes (the caller already knows them, having
// created the table) so backends that build attribute-name expressions
// (e.g. DynamoDB) don't need a separate schema lookup per query.
type QueryInput struct {
	HashKeyName  string
	HashEq       interface{}
	RangeKeyName string
	RangeBetween *RangeBetween
	Attributes   []string // nil means all attributes
	Consistent   bool
	Reverse      bool
}

// Iterator yields Items one at a time until exhausted.
type Iterator interface {
	Next() (Item, bool, error)
	Close() error
}

// BatchHandle accumulates Items for a single table and writes them as a
// backend-native batch on Flush.
type BatchHandle interface {
	Put(item Item) error
	Flush(ctx context.Context) error
}

// Table is the adapter contract over the hosted hash+range store.
type Table interface {
	Create(ctx context.Context, name string, hashKey, rangeKey *KeySchema, tp Throughput) error
	Describe(ctx context.Context, name string) (TableStatus, Throughput, error)
	UpdateThroughput(ctx context.Context, name string, tp Throughput) error
	Delete(ctx context.Context, name string) error

	PutItem(ctx context.Context, name string, item Item, overwrite bool) error
	DeleteItem(ctx context.Context, name string, key ItemKey) error
	BatchPutHandle(name string) BatchHandle

	Query(ctx context.Context, name string, in QueryInput) (Iterator, error)
	Scan(ctx context.Context, name string) (Iterator, error)
}
